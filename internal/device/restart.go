// Package device holds the node-level effects the core cannot perform itself.
//
// Restarting the device is the universal recovery primitive: the boot-loop
// detector, the provisioning restart command and exhausted reconnection all
// end in Restart. From the caller's point of view Restart does not return
// control to the state machine; callers must finish any persistence they
// depend on before invoking it.
package device

import (
	"sync"

	"github.com/muurk/nodelink/internal/logging"
	"go.uber.org/zap"
)

// Restarter restarts the device.
type Restarter interface {
	Restart(reason string)
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func(reason string)

// Restart calls f(reason).
func (f RestartFunc) Restart(reason string) {
	f(reason)
}

// HostRestarter is the Restarter used when a node runs as a host process.
//
// A restart cannot reboot the host, so it is delivered as a request on a
// channel; the process supervising the node tears it down and boots a fresh
// instance against the same store. Only the first request of a node
// lifetime is delivered; later ones are dropped until Reset.
type HostRestarter struct {
	mu        sync.Mutex
	requested bool
	ch        chan string
}

// NewHostRestarter creates a host restarter.
func NewHostRestarter() *HostRestarter {
	return &HostRestarter{ch: make(chan string, 1)}
}

// Restart implements Restarter.
func (h *HostRestarter) Restart(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.requested {
		logging.Debug("Restart already requested", zap.String("reason", reason))
		return
	}
	h.requested = true

	logging.Warn("Device restart requested", zap.String("reason", reason))
	h.ch <- reason
}

// Requests delivers restart reasons.
func (h *HostRestarter) Requests() <-chan string {
	return h.ch
}

// Reset re-arms the restarter for a new node lifetime.
func (h *HostRestarter) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requested = false
	select {
	case <-h.ch:
	default:
	}
}
