package config

import (
	"time"

	"github.com/muurk/nodelink/internal/bootloop"
	"github.com/muurk/nodelink/internal/connection"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/radio"
	"github.com/muurk/nodelink/internal/store"
	"github.com/muurk/nodelink/internal/update"
)

// CurrentVersion is the only supported config file version.
const CurrentVersion = 1

// NodeConfig represents the entire host node configuration file.
type NodeConfig struct {
	Version      int                `yaml:"version"`
	LogLevel     string             `yaml:"log_level,omitempty"` // debug, info, warn, error
	Store        StoreConfig        `yaml:"store"`
	Radio        radio.SimConfig    `yaml:"radio"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Update       UpdateConfig       `yaml:"update"`
	Timing       TimingConfig       `yaml:"timing,omitempty"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`        // memory, file or sqlite
	Path    string `yaml:"path,omitempty"` // Defaults to a file next to the config
}

// ProvisioningConfig configures the WebSocket provisioning adapter.
type ProvisioningConfig struct {
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Advertise bool   `yaml:"advertise"` // Register _nodelink._tcp over mDNS
}

// UpdateConfig configures the HTTP update listener.
type UpdateConfig struct {
	Addr       string `yaml:"addr"`
	StagingDir string `yaml:"staging_dir,omitempty"` // Defaults to the OS temp dir
	Advertise  bool   `yaml:"advertise"`             // Register _nodelink-update._tcp over mDNS
}

// TimingConfig overrides state machine timings. Zero values keep the defaults.
type TimingConfig struct {
	Tick                  time.Duration `yaml:"tick,omitempty"`
	PollInterval          time.Duration `yaml:"poll_interval,omitempty"`
	JoinTimeout           time.Duration `yaml:"join_timeout,omitempty"`
	ReconnectRestartDelay time.Duration `yaml:"reconnect_restart_delay,omitempty"`
	BootLoopThreshold     int           `yaml:"boot_loop_threshold,omitempty"`
	BootGraceWindow       time.Duration `yaml:"boot_grace_window,omitempty"`
}

// DefaultTick is the interval between state machine ticks on the host.
const DefaultTick = 100 * time.Millisecond

// NewNodeConfig creates a configuration with default values: a file store,
// one visible simulated network and advertising enabled.
func NewNodeConfig() *NodeConfig {
	return &NodeConfig{
		Version:  CurrentVersion,
		LogLevel: "info",
		Store: StoreConfig{
			Backend: store.BackendFile,
		},
		Radio: radio.SimConfig{
			MAC:           radio.DefaultMAC,
			AccessPointIP: radio.DefaultAccessPointIP,
			Networks: []radio.Network{
				{SSID: "homenet", Password: "secretpw", JoinDelay: 1500 * time.Millisecond},
			},
		},
		Provisioning: ProvisioningConfig{
			Addr:      provision.DefaultAddr,
			Path:      provision.DefaultPath,
			Advertise: true,
		},
		Update: UpdateConfig{
			Addr:      update.DefaultAddr,
			Advertise: true,
		},
	}
}

// ConnectionOptions converts the timing overrides into manager options.
func (c *NodeConfig) ConnectionOptions() connection.Options {
	return connection.Options{
		PollInterval:          c.Timing.PollInterval,
		JoinTimeout:           c.Timing.JoinTimeout,
		ReconnectRestartDelay: c.Timing.ReconnectRestartDelay,
		BootLoop: bootloop.Options{
			Threshold:   c.Timing.BootLoopThreshold,
			GraceWindow: c.Timing.BootGraceWindow,
		},
	}
}

// TickInterval returns the configured tick or DefaultTick.
func (c *NodeConfig) TickInterval() time.Duration {
	if c.Timing.Tick > 0 {
		return c.Timing.Tick
	}
	return DefaultTick
}

// applyDefaults fills fields a hand-edited file may leave empty.
func (c *NodeConfig) applyDefaults() {
	def := NewNodeConfig()
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Radio.MAC == "" {
		c.Radio.MAC = def.Radio.MAC
	}
	if c.Radio.AccessPointIP == "" {
		c.Radio.AccessPointIP = def.Radio.AccessPointIP
	}
	if c.Provisioning.Addr == "" {
		c.Provisioning.Addr = def.Provisioning.Addr
	}
	if c.Provisioning.Path == "" {
		c.Provisioning.Path = def.Provisioning.Path
	}
	if c.Update.Addr == "" {
		c.Update.Addr = def.Update.Addr
	}
}
