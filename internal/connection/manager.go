package connection

import (
	"context"
	"net"
	"time"

	"github.com/muurk/nodelink/internal/bootloop"
	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/device"
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/radio"
	"github.com/muurk/nodelink/internal/store"
	"github.com/muurk/nodelink/internal/update"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the link status polling period during a join.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultJoinTimeout bounds a single join attempt.
	DefaultJoinTimeout = 10 * time.Second

	// DefaultReconnectRestartDelay is how long the node waits before
	// restarting after a failed reconnection.
	DefaultReconnectRestartDelay = 10 * time.Second

	// ProvisioningRestartDelay is the delay between a provisioning restart
	// request and the restart. It matches provision.ReplyRestarting.
	ProvisioningRestartDelay = 5 * time.Second

	// MinAccessPointSecretLength is the shortest password accepted for the
	// provisioning network.
	MinAccessPointSecretLength = 8
)

// Options tunes the manager. Zero values select the defaults.
type Options struct {
	PollInterval          time.Duration
	JoinTimeout           time.Duration
	ReconnectRestartDelay time.Duration
	BootLoop              bootloop.Options
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.ReconnectRestartDelay <= 0 {
		o.ReconnectRestartDelay = DefaultReconnectRestartDelay
	}
	return o
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Store     store.CredentialStore
	Radio     radio.Radio
	Adapter   provision.Adapter
	Listener  update.Listener
	Clock     clock.Clock
	Restarter device.Restarter
}

// Manager owns the node's connection state.
type Manager struct {
	store     store.CredentialStore
	radio     radio.Radio
	adapter   provision.Adapter
	gate      *update.Gate
	clock     clock.Clock
	restarter device.Restarter
	detector  *bootloop.Detector
	opts      Options

	state          State
	bootChecked    bool
	halted         bool
	adapterStarted bool
	restart        clock.Timer
}

// connectAttempt is the deadline-bearing sub-state of a station join.
type connectAttempt struct {
	deadline     time.Time
	pollInterval time.Duration
}

func (a connectAttempt) expired(now time.Time) bool {
	return !now.Before(a.deadline)
}

// NewManager creates a manager in the Disconnected state.
func NewManager(deps Deps, opts Options) *Manager {
	opts = opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Manager{
		store:     deps.Store,
		radio:     deps.Radio,
		adapter:   deps.Adapter,
		gate:      update.NewGate(deps.Store, deps.Listener),
		clock:     deps.Clock,
		restarter: deps.Restarter,
		detector:  bootloop.New(deps.Store, deps.Clock, deps.Restarter, opts.BootLoop),
		opts:      opts,
		state:     Disconnected,
	}
}

// Connect brings the node up from stored credentials and returns the
// resulting state. It never fails; every failure resolves to Disconnected.
func (m *Manager) Connect(ctx context.Context) State {
	if m.halted {
		return m.state
	}

	if !m.bootChecked {
		m.bootChecked = true
		if _, wiped := m.detector.Check(); wiped {
			m.halted = true
			m.setState(Disconnected, "boot loop recovery")
			return m.state
		}
	}

	ssid, password, err := m.store.GetPair(store.NamespaceNetwork, store.KeySSID, store.KeyPassword, "", "")
	if err != nil {
		logging.Warn("Failed to read network credentials", zap.Error(err))
		ssid, password = "", ""
	}

	var next State
	var reason string
	if ssid == "" || password == "" {
		logging.Info("No network credentials stored, starting provisioning")
		next = m.startProvisioning()
		reason = "no network credentials"
	} else {
		next = m.attemptConnect(ctx, ssid, password)
		reason = "join " + ssid
	}
	m.setState(next, reason)

	if next == Connected {
		m.gate.Activate()
	}
	if next != Disconnected {
		logging.Info("Node address", zap.String("ip", m.IP().String()), zap.String("mac", m.MAC()))
	}
	return next
}

func (m *Manager) attemptConnect(ctx context.Context, ssid, password string) State {
	logging.Info("Joining network", zap.String("ssid", ssid))
	if err := m.radio.Join(ssid, password); err != nil {
		logging.Warn("Join request failed", zap.String("ssid", ssid), zap.Error(err))
		return Disconnected
	}

	attempt := connectAttempt{
		deadline:     m.clock.Now().Add(m.opts.JoinTimeout),
		pollInterval: m.opts.PollInterval,
	}
	for {
		status := m.radio.Status()
		if status == radio.StatusConnected {
			logging.Info("Joined network", zap.String("ssid", ssid))
			return Connected
		}
		if attempt.expired(m.clock.Now()) {
			logging.Warn("Timed out joining network",
				zap.String("ssid", ssid),
				zap.Stringer("status", status),
				zap.Duration("timeout", m.opts.JoinTimeout),
			)
			return Disconnected
		}

		select {
		case <-ctx.Done():
			logging.Debug("Join cancelled", zap.String("ssid", ssid))
			return Disconnected
		case <-m.clock.After(attempt.pollInterval):
		}
	}
}

func (m *Manager) startProvisioning() State {
	ssid, password, err := m.store.GetPair(store.NamespaceProvisioningAP, store.KeySSID, store.KeyPassword, "", "")
	if err != nil {
		logging.Warn("Failed to read provisioning network credentials", zap.Error(err))
		return Disconnected
	}
	if ssid == "" || len(password) < MinAccessPointSecretLength {
		logging.Info("Provisioning network credentials missing or password too short",
			zap.Bool("ssid_set", ssid != ""),
			zap.Int("secret_length", len(password)),
		)
		return Disconnected
	}

	if err := m.radio.StartAccessPoint(ssid, password); err != nil {
		logging.Error("Failed to start provisioning network", zap.String("ssid", ssid), zap.Error(err))
		return Disconnected
	}

	m.adapter.OnMessage(m.handleRequest)
	if !m.adapterStarted {
		if err := m.adapter.Begin(); err != nil {
			logging.Error("Failed to start provisioning adapter", zap.Error(err))
			return Disconnected
		}
		m.adapterStarted = true
	}

	logging.Info("Provisioning network started",
		zap.String("ssid", ssid),
		zap.String("ip", m.radio.AccessPointIP().String()),
	)
	return Provisioning
}

// handleRequest answers a single provisioning request. It runs on the tick
// goroutine and never blocks.
func (m *Manager) handleRequest(req provision.Request) string {
	if req.Truthy(provision.PropertyRestart) {
		logging.Info("Restart requested over provisioning channel")
		m.scheduleRestart(ProvisioningRestartDelay, "provisioning restart request")
		return provision.ReplyRestarting
	}

	ssid := req.Property(provision.PropertySSID)
	password := req.Property(provision.PropertyPassword)
	if ssid == "" || password == "" {
		return provision.ReplyMissing
	}

	if err := m.SetNetworkCredentials(ssid, password); err != nil {
		return provision.ReplySaveFailed
	}
	return provision.ReplySaved
}

// Loop performs one tick of the state machine.
func (m *Manager) Loop(ctx context.Context) {
	if m.halted {
		return
	}

	switch {
	case m.state == Provisioning:
		m.adapter.Service()
	case m.state == Disconnected || m.radio.Status() != radio.StatusConnected:
		m.handleDisconnected(ctx)
	case m.gate.Enabled():
		m.gate.Service()
	}
}

func (m *Manager) handleDisconnected(ctx context.Context) {
	logging.Warn("Connection lost, reconnecting", zap.Stringer("state", m.state))
	if m.state == Connected {
		m.setState(Disconnected, "link lost")
	}

	if m.Connect(ctx) != Disconnected || m.halted {
		return
	}
	if ctx.Err() != nil {
		return
	}

	logging.Error("Reconnection failed, restarting",
		zap.Duration("delay", m.opts.ReconnectRestartDelay),
	)
	m.halted = true
	m.scheduleRestart(m.opts.ReconnectRestartDelay, "reconnection failed")
}

// scheduleRestart arms a single delayed restart. Later requests while one is
// pending are ignored.
func (m *Manager) scheduleRestart(delay time.Duration, reason string) {
	if m.restart != nil {
		logging.Debug("Restart already pending", zap.String("reason", reason))
		return
	}
	m.restart = m.clock.AfterFunc(delay, func() {
		m.restarter.Restart(reason)
	})
}

// Stop cancels deferred work: the boot counter reset and any pending restart.
func (m *Manager) Stop() {
	m.detector.Stop()
	if m.restart != nil {
		m.restart.Stop()
	}
}

func (m *Manager) setState(next State, reason string) {
	if next == m.state {
		return
	}
	logging.LogStateTransition(m.state.String(), next.String(), reason)
	m.state = next
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.state
}

// RestartPending reports whether a delayed restart has been scheduled.
func (m *Manager) RestartPending() bool {
	return m.restart != nil
}

// IP returns the station address when connected, the provisioning network
// address when provisioning, and 0.0.0.0 otherwise.
func (m *Manager) IP() net.IP {
	var ip net.IP
	switch m.state {
	case Connected:
		ip = m.radio.LocalIP()
	case Provisioning:
		ip = m.radio.AccessPointIP()
	}
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}

// MAC returns the radio hardware address.
func (m *Manager) MAC() string {
	return m.radio.MAC()
}

// UpdateActive reports whether the update listener is running.
func (m *Manager) UpdateActive() bool {
	return m.gate.Enabled()
}

// UpdateConfig returns the update channel configuration from the last
// activation.
func (m *Manager) UpdateConfig() update.Config {
	return m.gate.Config()
}

// SetNetworkCredentials persists the home network credentials.
func (m *Manager) SetNetworkCredentials(ssid, password string) error {
	return m.setPair(store.NamespaceNetwork, store.KeySSID, ssid, store.KeyPassword, password)
}

// SetAccessPointCredentials persists the provisioning network credentials.
func (m *Manager) SetAccessPointCredentials(ssid, password string) error {
	return m.setPair(store.NamespaceProvisioningAP, store.KeySSID, ssid, store.KeyPassword, password)
}

// SetUpdateCredentials persists the update channel hostname and password.
func (m *Manager) SetUpdateCredentials(hostname, password string) error {
	return m.setPair(store.NamespaceUpdateChannel, store.KeyHostName, hostname, store.KeyPassword, password)
}

func (m *Manager) setPair(namespace, key1, identifier, key2, secret string) error {
	if err := m.store.SetPair(namespace, key1, identifier, key2, secret); err != nil {
		logging.Error("Failed to save credentials",
			zap.String("namespace", namespace),
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return err
	}
	logging.LogCredentialsSet(namespace, identifier, len(secret))
	return nil
}
