package cli

import (
	"github.com/spf13/cobra"

	"recipe-importer/internal/core/auth"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List sites with a supported login flow",
	Args:  cobra.NoArgs,
	RunE:  runHosts,
}

func init() {
	rootCmd.AddCommand(hostsCmd)
}

func runHosts(cmd *cobra.Command, args []string) error {
	for _, host := range auth.NewCatalog(auth.DefaultHosts...).Hosts() {
		printf(cmd.OutOrStdout(), "%s\n", host)
	}
	return nil
}
