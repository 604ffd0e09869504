package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
)

var rootCmd = &cobra.Command{
	Use:   "recipe-importer",
	Short: "Import recipes from web pages into the catalog",
	Long: `recipe-importer fetches recipe pages, resolves their ingredients and tags
against the existing catalog and saves them in one batch.`,
	SilenceUsage: true,
}

// Execute 執行命令列
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
}

// loadConfig 載入設定並初始化 logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func printf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}
