package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recipe-importer/internal/app"
	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

var importCmd = &cobra.Command{
	Use:   "import [url...]",
	Short: "Fetch recipes and import them into the catalog",
	Long: `Fetch every url, resolve ingredients and tags that do not match the
catalog exactly, then save the batch. Without --auto-accept or
--create-missing unresolved items are dismissed.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	addImportFlags(importCmd)
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "provider name used for import history (default: host of the first url)")
	cmd.Flags().StringP("urls-file", "f", "", "file with one url per line, - for stdin")
	cmd.Flags().Bool("auto-accept", false, "map unresolved items to their closest catalog match")
	cmd.Flags().Bool("create-missing", false, "create catalog entries for items without an accepted match")
	cmd.Flags().Bool("dry-run", false, "resolve the batch without writing recipes or history")
	cmd.Flags().Bool("skip-imported", true, "skip urls already present in the import history")
	cmd.Flags().Int("default-persons", 0, "servings when the page has none (default from config)")
	cmd.Flags().StringSlice("ignore-tag", nil, "case-insensitive pattern of tags to drop (repeatable)")
}

// importOptions import 命令的參數
type importOptions struct {
	request importer.Request
	policy  importer.Policy
	dryRun  bool
}

func parseImportOptions(cmd *cobra.Command, args []string) (importOptions, error) {
	flags := cmd.Flags()
	file, _ := flags.GetString("urls-file")
	urls, err := collectURLs(args, file, cmd.InOrStdin())
	if err != nil {
		return importOptions{}, err
	}
	if len(urls) == 0 {
		return importOptions{}, errors.New("no urls given: pass urls as arguments or with --urls-file")
	}

	var opts importOptions
	opts.request.URLs = urls
	opts.request.Provider, _ = flags.GetString("provider")
	opts.request.SkipImported, _ = flags.GetBool("skip-imported")
	opts.request.DefaultPersons, _ = flags.GetInt("default-persons")
	if flags.Changed("ignore-tag") {
		opts.request.IgnoredPatterns, _ = flags.GetStringSlice("ignore-tag")
	}
	opts.policy.AcceptFirst, _ = flags.GetBool("auto-accept")
	opts.policy.CreateMissing, _ = flags.GetBool("create-missing")
	opts.dryRun, _ = flags.GetBool("dry-run")
	return opts, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	opts, err := parseImportOptions(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer common.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, app.Options{DryRun: opts.dryRun})
	if err != nil {
		return fmt.Errorf("failed to build services: %w", err)
	}
	defer services.Close()

	return runBatch(ctx, cmd.OutOrStdout(), services.Importer, opts)
}

// runBatch 抓取並以無人值守策略完成一批匯入
func runBatch(ctx context.Context, out io.Writer, svc *importer.Service, opts importOptions) error {
	common.LogInfo("開始匯入",
		zap.Int("urls", len(opts.request.URLs)),
		zap.Bool("auto_accept", opts.policy.AcceptFirst),
		zap.Bool("create_missing", opts.policy.CreateMissing),
		zap.Bool("dry_run", opts.dryRun),
	)

	batch, err := svc.Start(ctx, opts.request)
	if batch != nil {
		for _, u := range batch.Skipped {
			printf(out, "skipped  %s (already imported)\n", u)
		}
		for _, f := range batch.Failed {
			printf(out, "failed   %s: %s\n", f.URL, f.Error)
		}
	}
	if errors.Is(err, importer.ErrNoRecipesFetched) {
		printf(out, "nothing to import\n")
		if batch != nil && len(batch.Failed) > 0 {
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}

	res, err := importer.AutoResolve(ctx, batch.Workflow, opts.policy)
	w := batch.Workflow
	printf(out, "resolved %d accepted, %d created, %d dismissed\n", res.Accepted, res.Created, res.Dismissed)
	if err != nil {
		return fmt.Errorf("import %s: %w", w.Phase(), err)
	}
	if w.Phase() != workflow.PhaseComplete {
		return fmt.Errorf("import stopped in phase %s", w.Phase())
	}

	verb := "imported"
	if opts.dryRun {
		verb = "would import"
	}
	printf(out, "%s %d of %d recipes\n", verb, w.ImportedCount(), len(batch.Recipes))
	return nil
}
