package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/nodelink/internal/config"
	"github.com/muurk/nodelink/internal/connection"
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/node"
	"github.com/muurk/nodelink/internal/store"
	"github.com/muurk/nodelink/internal/ui"
	"github.com/muurk/nodelink/internal/update"
)

// Store selection flags, shared by every command touching the store
var (
	configPath   string
	storeBackend string
	storePath    string
	logLevel     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to node.yaml (default: OS config directory)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Credential store backend (memory, file, sqlite); overrides the config")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Credential store location; overrides the config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies the store flag overrides
func loadConfig() (*config.NodeConfig, string, error) {
	cfg, path, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}

	if storeBackend != "" && storeBackend != cfg.Store.Backend {
		cfg.Store.Backend = storeBackend
		cfg.Store.Path = config.DefaultStorePath(path, storeBackend)
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	return cfg, path, nil
}

// openStore loads the config and opens the selected credential store
func openStore() (*config.NodeConfig, store.CredentialStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return cfg, st, nil
}

// runCmd runs the node until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node",
	Long: `Run the simulated node until interrupted.

On start the node increments its boot counter, then joins the saved network
or, without one, opens the provisioning endpoint. Every restart the node
requests (boot-loop recovery, a provisioning restart command, a failed
reconnection or a staged firmware image) tears the node down and boots it
again against the same store.`,
	Example: `  # Run with the default config and file store
  nodelink-node run

  # Run against a SQLite store with debug logging
  nodelink-node run --store sqlite --store-path ./node.db --log-level debug

  # Run with a throwaway in-memory store
  nodelink-node run --store memory`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	fmt.Println(ui.NewHeader("Nodelink Node", "run",
		ui.Param{Key: "Store", Value: cfg.Store.Backend},
		ui.Param{Key: "Path", Value: cfg.Store.Path},
		ui.Param{Key: "Provisioning", Value: cfg.Provisioning.Addr + cfg.Provisioning.Path},
		ui.Param{Key: "Update", Value: cfg.Update.Addr},
	).Render())

	return node.New(cfg, st).Start()
}

// Seed command flags
var (
	seedAPSSID      string
	seedAPPassword  string
	seedUpdateHost  string
	seedUpdatePass  string
	seedNetworkSSID string
	seedNetworkPass string
)

// seedCmd writes credentials into the store
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write credentials into the store",
	Long: `Write provisioning network, update channel or home network credentials
into the node's store. Only the pairs whose flags are given are written.

The provisioning network and update channel passwords must be at least
8 characters long; the node ignores shorter ones at runtime.`,
	Example: `  # Let the node provision on first start
  nodelink-node seed --ap-ssid nodelink-setup --ap-password setup-pass

  # Enable the update listener
  nodelink-node seed --update-host node-1 --update-password update-pass

  # Skip provisioning entirely
  nodelink-node seed --ssid homenet --password secretpw`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedAPSSID, "ap-ssid", "", "Provisioning network SSID")
	seedCmd.Flags().StringVar(&seedAPPassword, "ap-password", "", "Provisioning network password (min 8 characters)")
	seedCmd.Flags().StringVar(&seedUpdateHost, "update-host", "", "Update channel hostname")
	seedCmd.Flags().StringVar(&seedUpdatePass, "update-password", "", "Update channel password (min 8 characters)")
	seedCmd.Flags().StringVar(&seedNetworkSSID, "ssid", "", "Home network SSID")
	seedCmd.Flags().StringVar(&seedNetworkPass, "password", "", "Home network password")
}

func runSeed(cmd *cobra.Command, args []string) error {
	pairs, err := seedPairs()
	if err != nil {
		return err
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result := ui.NewSuccessResult("Credentials written",
		ui.Param{Key: "Store", Value: cfg.Store.Backend + " " + cfg.Store.Path},
	)
	if err := writeSeeds(st, pairs); err != nil {
		fmt.Println(ui.NewFailureResult("Failed to write credentials", err,
			"Check the store path is writable",
			"Stop a running node before seeding a file store",
		).Render())
		return err
	}
	for _, p := range pairs {
		result.AddDetail(p.namespace, p.identifier+" / "+logging.Mask(p.secret))
	}

	fmt.Println(result.Render())
	return nil
}

type seedPair struct {
	namespace  string
	key        string // Store key of the identifier; the secret is always KeyPassword
	identifier string
	secret     string
	minSecret  int
}

// seedPairs validates the seed flags and returns the pairs to write
func seedPairs() ([]seedPair, error) {
	candidates := []seedPair{
		{store.NamespaceProvisioningAP, store.KeySSID, seedAPSSID, seedAPPassword, connection.MinAccessPointSecretLength},
		{store.NamespaceUpdateChannel, store.KeyHostName, seedUpdateHost, seedUpdatePass, update.MinSecretLength},
		{store.NamespaceNetwork, store.KeySSID, seedNetworkSSID, seedNetworkPass, 0},
	}

	var pairs []seedPair
	for _, p := range candidates {
		if p.identifier == "" && p.secret == "" {
			continue
		}
		if p.identifier == "" || p.secret == "" {
			return nil, fmt.Errorf("%s needs both a name and a password", p.namespace)
		}
		if len(p.secret) < p.minSecret {
			return nil, fmt.Errorf("%s password must be at least %d characters", p.namespace, p.minSecret)
		}
		pairs = append(pairs, p)
	}

	if len(pairs) == 0 {
		return nil, errors.New("nothing to write; pass --ap-ssid/--ap-password, --update-host/--update-password or --ssid/--password")
	}
	return pairs, nil
}

// writeSeeds stores every pair, stopping at the first failure
func writeSeeds(st store.CredentialStore, pairs []seedPair) error {
	for _, p := range pairs {
		if err := st.SetPair(p.namespace, p.key, p.identifier, store.KeyPassword, p.secret); err != nil {
			return fmt.Errorf("failed to write %s credentials: %w", p.namespace, err)
		}
		logging.LogCredentialsSet(p.namespace, p.identifier, len(p.secret))
	}
	return nil
}

// storeCmd groups store inspection commands
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the credential store",
}

var storeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every namespace in the store",
	Long: `Print every namespace and key held by the credential store.
Passwords are masked.`,
	RunE: runStoreShow,
}

var storeClearCmd = &cobra.Command{
	Use:   "clear <namespace>...",
	Short: "Remove namespaces from the store",
	Example: `  # Forget the home network so the node provisions on next start
  nodelink-node store clear network

  # Reset the boot counter
  nodelink-node store clear boot`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStoreClear,
}

var clearYes bool

func init() {
	storeClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")

	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeClearCmd)
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := store.Snapshot(st)
	if err != nil {
		return err
	}

	fmt.Println(ui.NewHeader("Credential Store", "store show",
		ui.Param{Key: "Backend", Value: cfg.Store.Backend},
		ui.Param{Key: "Path", Value: cfg.Store.Path},
	).Render())
	fmt.Println(ui.RenderStore(data))
	return nil
}

func runStoreClear(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if !clearYes && !ui.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Remove %v from the store?", args)) {
		return nil
	}

	if err := st.Clear(args...); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	fmt.Println(ui.NewSuccessResult("Namespaces removed", ui.Param{Key: "Namespaces", Value: fmt.Sprint(args)}).Render())
	return nil
}

// configCmd groups config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the node configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file without asking")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		if !ui.Confirm(os.Stdin, os.Stdout, path+" exists. Overwrite?") {
			return nil
		}
	}

	cfg := config.NewNodeConfig()
	if storeBackend != "" {
		cfg.Store.Backend = storeBackend
	}
	cfg.Store.Path = storePath
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Println(ui.NewSuccessResult("Configuration written",
		ui.Param{Key: "Path", Value: path},
		ui.Param{Key: "Store", Value: cfg.Store.Backend},
	).Render())
	return nil
}
