// Package update gates the firmware-update listener on stored credentials.
//
// The update channel is optional. It is enabled only when the update-channel
// namespace holds a hostname and a password of at least MinSecretLength
// characters; anything less leaves the listener off without reporting an
// error. The enabled flag is never persisted; it is derived on every
// activation.
package update

import (
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/store"
	"go.uber.org/zap"
)

// MinSecretLength is the shortest password that enables the update channel.
const MinSecretLength = 8

// Config is the derived update-channel configuration.
type Config struct {
	Hostname string
	Secret   string
	Enabled  bool
}

// Listener is the firmware-update transport.
type Listener interface {
	// Begin configures the listener identity and starts it.
	Begin(hostname, password string) error

	// Handle services pending update traffic. Called every tick while
	// connected.
	Handle()
}

// Gate activates and services a Listener.
type Gate struct {
	store    store.CredentialStore
	listener Listener
	cfg      Config
}

// NewGate creates a disabled gate.
func NewGate(s store.CredentialStore, l Listener) *Gate {
	return &Gate{store: s, listener: l}
}

// Activate reads the update-channel credentials and starts the listener if
// they are usable. It reports whether the gate is enabled.
func (g *Gate) Activate() bool {
	if g.cfg.Enabled {
		return true
	}

	hostname, secret, err := g.store.GetPair(store.NamespaceUpdateChannel, store.KeyHostName, store.KeyPassword, "", "")
	if err != nil {
		logging.Warn("Failed to read update channel credentials", zap.Error(err))
		return false
	}

	g.cfg = Config{Hostname: hostname, Secret: secret}

	if hostname == "" || len(secret) < MinSecretLength {
		logging.Info("Update channel credentials missing or password too short, update listener disabled",
			zap.Bool("hostname_set", hostname != ""),
			zap.Int("secret_length", len(secret)),
		)
		return false
	}

	if g.listener == nil {
		logging.Warn("No update listener configured")
		return false
	}

	if err := g.listener.Begin(hostname, secret); err != nil {
		logging.Error("Failed to start update listener",
			zap.String("hostname", hostname),
			zap.Error(err),
		)
		return false
	}

	g.cfg.Enabled = true
	logging.Info("Update listener initialized", zap.String("hostname", hostname))
	return true
}

// Service delegates to the listener while enabled.
func (g *Gate) Service() {
	if !g.cfg.Enabled {
		return
	}
	g.listener.Handle()
}

// Enabled reports whether the listener is running.
func (g *Gate) Enabled() bool {
	return g.cfg.Enabled
}

// Config returns the configuration derived on the last activation.
func (g *Gate) Config() Config {
	return g.cfg
}
