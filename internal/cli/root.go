// internal/cli/root.go
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/websentry/scraperd/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "scraperd",
	Short:   "A queue-driven domain scrape worker",
	Long:    `Scraperd consumes domains from a message topic, scrapes each one through a headless browser, and publishes a structured result record per domain.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Register centralized flags
	config.RegisterFlags(rootCmd)

	rootCmd.Flags().BoolP("help", "h", false, "Help for Scraperd")
	rootCmd.Flags().Bool("version", false, "Version for Scraperd")
}
