// Package cli implements the conduit command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Agent session orchestration daemon",
	Long: `Conduit hosts language-model agent sessions behind an HTTP API:
a bounded session table, per-session event streams over SSE and
WebSocket, tool call correlation and usage accounting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("conduit", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.conduit/conduit.json)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
