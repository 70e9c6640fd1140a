package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/nodelink/internal/discovery"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/ui"
	"github.com/muurk/nodelink/internal/wizard/tui"
)

// defaultNodePort is the provisioning port assumed when --node has none
const defaultNodePort = 8080

// Node selection flags (persistent on root)
var (
	nodeAddr     string
	nodeInstance string
	scanTimeout  int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeAddr, "node", "", "Node address as host or host:port (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&nodeInstance, "instance", "", "mDNS instance name of the node (e.g. nodelink-4e4c01)")
	rootCmd.PersistentFlags().IntVar(&scanTimeout, "timeout", 5, "Discovery timeout in seconds")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(wizardCmd)
}

// scanCmd discovers nodes on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nodelink nodes on the network",
	Long: `Scan for nodelink nodes using mDNS/DNS-SD discovery.

By default the scan lists nodes in provisioning mode (_nodelink._tcp).
With --update it lists connected nodes running the update listener
(_nodelink-update._tcp) instead.`,
	Example: `  # Scan for 5 seconds (default)
  nodelink-cfg scan

  # Longer scan for slow networks
  nodelink-cfg scan --timeout 15

  # List nodes accepting firmware updates
  nodelink-cfg scan --update`,
	RunE: runScan,
}

var scanUpdate bool

func init() {
	scanCmd.Flags().BoolVar(&scanUpdate, "update", false, "Scan for update listeners instead of provisioning nodes")
}

func runScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second
	if scanUpdate {
		scanner.Kind = discovery.KindUpdate
	}

	fmt.Println(ui.NewHeader("Scan", "nodelink-cfg scan",
		ui.Param{Key: "Service", Value: discovery.ServiceType(scanner.Kind)},
		ui.Param{Key: "Timeout", Value: scanner.Timeout.String()},
	).Render())

	nodes, err := scanner.ScanForNodes(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Println(ui.RenderNodes(nodes))
	if len(nodes) > 0 && !scanUpdate {
		fmt.Println()
		fmt.Println(ui.HintStyle.Render("  Use 'nodelink-cfg provision --node <host:port> --ssid <ssid>' to provision a node"))
	}
	return nil
}

// Provision command flags
var (
	provisionSSID     string
	provisionPassword string
	provisionRestart  bool
)

// provisionCmd sends network credentials to a node
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Send network credentials to a node",
	Long: `Send home network credentials to a node in provisioning mode.

The node stores the credentials and keeps provisioning until it restarts.
Pass --restart to ask it to restart afterwards; it then joins the new
network. The password is prompted for when --password is not given.`,
	Example: `  # Provision the only node found by discovery
  nodelink-cfg provision --ssid homenet

  # Provision a node by address and restart it
  nodelink-cfg provision --node 192.168.4.1 --ssid homenet --restart`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&provisionSSID, "ssid", "", "Home network SSID (required)")
	provisionCmd.Flags().StringVar(&provisionPassword, "password", "", "Home network password (prompted if omitted)")
	provisionCmd.Flags().BoolVar(&provisionRestart, "restart", false, "Restart the node after saving")
	_ = provisionCmd.MarkFlagRequired("ssid")
}

func runProvision(cmd *cobra.Command, args []string) error {
	url, err := resolveNodeURL(cmd.Context())
	if err != nil {
		return err
	}

	password := provisionPassword
	if password == "" {
		password, err = ui.ReadPassword("Password for " + provisionSSID + ": ")
		if errors.Is(err, ui.ErrNotTerminal) {
			return fmt.Errorf("--password is required when stdin is not a terminal")
		}
		if err != nil {
			return err
		}
	}

	fmt.Println(ui.NewHeader("Provision", "nodelink-cfg provision",
		ui.Param{Key: "Node", Value: url},
		ui.Param{Key: "SSID", Value: provisionSSID},
		ui.Param{Key: "Restart", Value: strconv.FormatBool(provisionRestart)},
	).Render())

	ctx, cancel := context.WithTimeout(cmd.Context(), provision.DefaultTimeout)
	defer cancel()

	client, err := provision.Dial(ctx, url)
	if err != nil {
		printFailure("Could not reach node", err)
		return err
	}
	defer client.Close()

	reply, err := client.SaveCredentials(ctx, provisionSSID, password)
	if err != nil {
		printFailure("Provisioning failed", err)
		return err
	}
	if reply != provision.ReplySaved {
		err := fmt.Errorf("node rejected credentials: %s", reply)
		printFailure("Provisioning failed", err)
		return err
	}

	result := ui.NewSuccessResult("Credentials saved", ui.Param{Key: "Reply", Value: reply})
	if provisionRestart {
		restartReply, err := client.Restart(ctx)
		if err != nil {
			printFailure("Restart request failed", err)
			return err
		}
		result.AddDetail("Restart", restartReply)
	}
	fmt.Println(result.Render())
	return nil
}

// restartCmd asks a provisioning node to restart
var restartCmd = &cobra.Command{
	Use:     "restart",
	Short:   "Ask a node in provisioning mode to restart",
	Example: `  nodelink-cfg restart --node 192.168.4.1`,
	RunE:    runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	url, err := resolveNodeURL(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), provision.DefaultTimeout)
	defer cancel()

	client, err := provision.Dial(ctx, url)
	if err != nil {
		printFailure("Could not reach node", err)
		return err
	}
	defer client.Close()

	reply, err := client.Restart(ctx)
	if err != nil {
		printFailure("Restart request failed", err)
		return err
	}
	fmt.Println(ui.NewSuccessResult("Restart requested",
		ui.Param{Key: "Node", Value: url},
		ui.Param{Key: "Reply", Value: reply},
	).Render())
	return nil
}

// wizardCmd launches the interactive TUI wizard
var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch interactive provisioning wizard",
	Long: `Launch an interactive TUI wizard for provisioning nodes.

The wizard provides a user-friendly interface for:
- Discovering nodes in provisioning mode
- Entering network credentials
- Sending them and restarting the node

This is the recommended way to provision nodes for most users.`,
	Example: `  # Launch wizard with auto-discovery
  nodelink-cfg wizard
  # Or simply (wizard is default):
  nodelink-cfg

  # Launch wizard for a specific node
  nodelink-cfg wizard --node 192.168.4.1`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	services := tui.DefaultServices(time.Duration(scanTimeout) * time.Second)

	var node *discovery.Node
	if nodeAddr != "" {
		n, err := nodeFromAddr(nodeAddr)
		if err != nil {
			return err
		}
		node = n
	}

	p := tea.NewProgram(tui.NewAppModel(services, node), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("wizard error: %w", err)
	}
	return nil
}

// resolveNodeURL picks the node from --node, --instance or discovery
func resolveNodeURL(ctx context.Context) (string, error) {
	if nodeAddr != "" {
		node, err := nodeFromAddr(nodeAddr)
		if err != nil {
			return "", err
		}
		return node.URL(), nil
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	if nodeInstance != "" {
		fmt.Printf("Looking for %s...\n", nodeInstance)
		node, err := scanner.WaitForNode(ctx, nodeInstance)
		if err != nil {
			return "", err
		}
		return node.URL(), nil
	}

	fmt.Println("No node specified, attempting auto-discovery...")
	nodes, err := scanner.ScanForNodes(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	switch len(nodes) {
	case 0:
		return "", fmt.Errorf("no nodes found. Use --node to specify the address manually")
	case 1:
		fmt.Printf("Found node: %s\n\n", nodes[0])
		return nodes[0].URL(), nil
	default:
		fmt.Println(ui.RenderNodes(nodes))
		return "", fmt.Errorf("multiple nodes found. Use --node or --instance to specify which one")
	}
}

// nodeFromAddr builds a provisioning node from "host" or "host:port"
func nodeFromAddr(addr string) (*discovery.Node, error) {
	addr = strings.TrimSpace(addr)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, ""
	}
	if host == "" {
		return nil, fmt.Errorf("invalid node address %q", addr)
	}

	port := defaultNodePort
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port in node address %q", addr)
		}
	}

	return &discovery.Node{
		Instance:     host,
		IP:           host,
		Port:         port,
		Kind:         discovery.KindProvisioning,
		Path:         provision.DefaultPath,
		DiscoveredAt: time.Now(),
	}, nil
}

func printFailure(title string, err error) {
	tips := []string{"Check the node address and that the node is in provisioning mode"}
	if provision.IsRetryable(err) {
		tips = append(tips,
			"Join the node's provisioning network before retrying",
			"The node may have restarted; run 'nodelink-cfg scan'",
		)
	}
	fmt.Println(ui.NewFailureResult(title, err, tips...).Render())
}
