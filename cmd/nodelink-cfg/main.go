// Nodelink-cfg provisions nodelink devices from a workstation.
//
// It discovers nodes advertising the provisioning service over mDNS, sends
// home network credentials to them over WebSocket and asks them to restart.
// An interactive wizard covers the whole flow.
//
// Usage:
//
//	nodelink-cfg [command] [flags]
//
// Running without arguments launches the interactive wizard.
// See 'nodelink-cfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/muurk/nodelink/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nodelink-cfg",
	Short: "Nodelink Provisioning Utility",
	Long: `A utility for provisioning nodelink devices.

Provides node discovery, an interactive provisioning wizard, and direct
commands for sending network credentials and restart requests.

If no command is specified, the interactive wizard will launch automatically.`,
	Version: version.Get().Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWizard(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(version.Full("nodelink-cfg") + "\n")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full("nodelink-cfg"))
	},
}
