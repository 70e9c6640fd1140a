// Nodelink-node runs a simulated nodelink device on the host.
//
// The node keeps its credentials in a persistent store, joins the saved
// network through a simulated radio, falls back to WebSocket provisioning
// when it has none, and exposes an HTTP update listener once connected.
//
// Usage:
//
//	nodelink-node [command] [flags]
//
// See 'nodelink-node --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/nodelink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nodelink-node",
	Short: "Simulated nodelink device",
	Long: `Runs a nodelink device as a host process.

The node connects to the network saved in its credential store. Without
saved credentials it opens a provisioning endpoint that accepts network
credentials over WebSocket; use 'nodelink-cfg' to send them.`,
	Version: version.Get().Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(version.Full("nodelink-node") + "\n")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full("nodelink-node"))
	},
}
