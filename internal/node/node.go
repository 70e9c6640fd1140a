package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/config"
	"github.com/muurk/nodelink/internal/connection"
	"github.com/muurk/nodelink/internal/device"
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/radio"
	"github.com/muurk/nodelink/internal/store"
	"github.com/muurk/nodelink/internal/update"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds the teardown of one lifetime.
const ShutdownTimeout = 10 * time.Second

// Option customizes a Runtime.
type Option func(*Runtime)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// Runtime hosts successive lifetimes of one node.
type Runtime struct {
	cfg       *config.NodeConfig
	store     store.CredentialStore
	clock     clock.Clock
	restarter *device.HostRestarter

	mu       sync.Mutex
	boots    int
	state    connection.State
	provURL  string
	updateAt net.Addr
}

// lifetime is one boot of the node.
type lifetime struct {
	manager  *connection.Manager
	adapter  *provision.WebSocketAdapter
	listener *update.HTTPListener
}

// New creates a runtime for cfg backed by st. The caller keeps ownership of
// st and closes it after Run returns.
func New(cfg *config.NodeConfig, st store.CredentialStore, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:       cfg,
		store:     st,
		clock:     clock.New(),
		restarter: device.NewHostRestarter(),
		state:     connection.Disconnected,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the node until SIGINT or SIGTERM.
func (r *Runtime) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting nodelink node",
		zap.String("store", r.cfg.Store.Backend),
		zap.String("store_path", r.cfg.Store.Path),
		zap.Duration("tick", r.cfg.TickInterval()),
	)

	err := r.Run(ctx)
	logging.Sync()
	return err
}

// Run boots the node and ticks it until ctx is done, rebooting on every
// restart request.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		lt := r.boot()

		reason, err := r.serve(ctx, lt)
		r.shutdown(lt)
		if err != nil {
			logging.Info("Shutdown signal received, node stopped")
			return nil
		}

		logging.Info("Rebooting node", zap.String("reason", reason))
		r.restarter.Reset()
	}
}

func (r *Runtime) boot() *lifetime {
	r.mu.Lock()
	r.boots++
	boot := r.boots
	r.mu.Unlock()

	sim := radio.NewSim(r.cfg.Radio, r.clock)

	adapter := provision.NewWebSocketAdapter(provision.WebSocketConfig{
		Addr:      r.cfg.Provisioning.Addr,
		Path:      r.cfg.Provisioning.Path,
		Advertise: r.cfg.Provisioning.Advertise,
		Instance:  InstanceName(sim.MAC()),
		MAC:       sim.MAC(),
	})

	listener := update.NewHTTPListener(update.HTTPConfig{
		Addr:       r.cfg.Update.Addr,
		StagingDir: r.cfg.Update.StagingDir,
		Advertise:  r.cfg.Update.Advertise,
		OnComplete: func(u update.Upload) {
			r.restarter.Restart("firmware image staged")
		},
	})

	manager := connection.NewManager(connection.Deps{
		Store:     r.store,
		Radio:     sim,
		Adapter:   adapter,
		Listener:  listener,
		Clock:     r.clock,
		Restarter: r.restarter,
	}, r.cfg.ConnectionOptions())

	logging.Info("Node booted", zap.Int("boot", boot), zap.String("mac", sim.MAC()))

	return &lifetime{manager: manager, adapter: adapter, listener: listener}
}

// serve connects and ticks lt. It returns the restart reason, or ctx's error
// once ctx is done.
func (r *Runtime) serve(ctx context.Context, lt *lifetime) (string, error) {
	r.record(lt, lt.manager.Connect(ctx))

	ticker := time.NewTicker(r.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case reason := <-r.restarter.Requests():
			return reason, nil
		case <-ticker.C:
			lt.manager.Loop(ctx)
			r.record(lt, lt.manager.State())
		}
	}
}

func (r *Runtime) record(lt *lifetime, state connection.State) {
	var provURL string
	if state == connection.Provisioning {
		provURL = lt.adapter.URL(advertisedHost(lt.adapter.Addr(), lt.manager.IP()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.provURL = provURL
	r.updateAt = lt.listener.Addr()
}

// shutdown stops the lifetime's timers and closes its listeners.
func (r *Runtime) shutdown(lt *lifetime) {
	lt.manager.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := lt.adapter.Close(); err != nil {
			logging.Error("Error closing provisioning adapter", zap.Error(err))
		}
		if err := lt.listener.Close(); err != nil {
			logging.Error("Error closing update listener", zap.Error(err))
		}
	}()

	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		logging.Warn("Shutdown timeout, forcing close", zap.Duration("timeout", ShutdownTimeout))
	}

	r.mu.Lock()
	r.state = connection.Disconnected
	r.provURL = ""
	r.updateAt = nil
	r.mu.Unlock()
}

// State returns the connection state of the current lifetime.
func (r *Runtime) State() connection.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Boots returns the number of lifetimes started so far.
func (r *Runtime) Boots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boots
}

// ProvisioningURL returns the provisioning endpoint while provisioning, or "".
func (r *Runtime) ProvisioningURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.provURL
}

// UpdateAddr returns the update listener address while it runs, or nil.
func (r *Runtime) UpdateAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateAt
}

// advertisedHost is the host clients should dial: the bound address, or the
// node's own address when bound to all interfaces.
func advertisedHost(bound net.Addr, nodeIP net.IP) string {
	if tcp, ok := bound.(*net.TCPAddr); ok && tcp.IP != nil && !tcp.IP.IsUnspecified() {
		return tcp.IP.String()
	}
	return nodeIP.String()
}

// InstanceName derives the mDNS instance name from a MAC address, e.g.
// "nodelink-4e4c01" for 02:00:00:4e:4c:01.
func InstanceName(mac string) string {
	hex := strings.ReplaceAll(strings.ToLower(mac), ":", "")
	if len(hex) < 6 {
		return "nodelink"
	}
	return fmt.Sprintf("nodelink-%s", hex[len(hex)-6:])
}
