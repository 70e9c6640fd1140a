// Package bootloop detects repeated fast restarts and recovers from them.
//
// Every process start increments a persisted counter before any network
// activity. A start that survives the grace window schedules the counter back
// to zero. When Threshold starts happen in a row without reaching the grace
// window, the saved station credentials are assumed to be the cause: the
// network and boot namespaces are wiped and the device restarts into
// provisioning mode.
package bootloop

import (
	"time"

	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/device"
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the number of consecutive fast starts treated as a boot loop.
	DefaultThreshold = 4

	// DefaultGraceWindow is how long a process must stay up before its start
	// is forgiven.
	DefaultGraceWindow = 4 * time.Second
)

// Options tunes the detector. Zero values select the defaults.
type Options struct {
	Threshold   int
	GraceWindow time.Duration
}

// Detector counts fast restarts in the boot namespace.
type Detector struct {
	store     store.CredentialStore
	clock     clock.Clock
	restarter device.Restarter
	opts      Options

	reset clock.Timer
}

// New creates a detector.
func New(s store.CredentialStore, c clock.Clock, r device.Restarter, opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	return &Detector{store: s, clock: c, restarter: r, opts: opts}
}

// Check records this start and returns the post-increment count.
//
// If the count reaches the threshold the network and boot namespaces are
// cleared, the device is restarted and wiped is true; the caller must not
// continue booting. Otherwise the counter is scheduled back to zero after the
// grace window. Check must run once per process start.
func (d *Detector) Check() (count int, wiped bool) {
	count, err := d.store.GetInt(store.NamespaceBoot, store.KeyBootCount, 0)
	if err != nil {
		logging.Warn("Failed to read boot count, assuming zero", zap.Error(err))
		count = 0
	}
	count++

	if err := d.store.SetInt(store.NamespaceBoot, store.KeyBootCount, count); err != nil {
		logging.Warn("Failed to persist boot count", zap.Int("boot_count", count), zap.Error(err))
	}
	logging.LogBootCount(count)

	if count >= d.opts.Threshold {
		logging.Warn("Detected repeated fast reboots, clearing network credentials",
			zap.Int("boot_count", count),
			zap.Int("threshold", d.opts.Threshold),
		)

		// The clear completes before the restart effect fires.
		result := "success"
		if err := d.store.Clear(store.NamespaceNetwork, store.NamespaceBoot); err != nil {
			result = "failure"
			logging.Error("Failed to clear network and boot namespaces", zap.Error(err))
		}
		logging.Info("Network and boot namespace clear finished", zap.String("result", result))

		d.restarter.Restart("boot loop detected")
		return count, true
	}

	d.reset = d.clock.AfterFunc(d.opts.GraceWindow, d.resetCount)
	return count, false
}

// resetCount runs on its own timer once the grace window has passed. It
// writes the literal zero, never a decrement.
func (d *Detector) resetCount() {
	if err := d.store.SetInt(store.NamespaceBoot, store.KeyBootCount, 0); err != nil {
		logging.Warn("Failed to reset boot count", zap.Error(err))
		return
	}
	logging.Info("Boot count reset to 0")
}

// Stop cancels a pending reset. Used when a node instance is torn down
// without a real process exit.
func (d *Detector) Stop() {
	if d.reset != nil {
		d.reset.Stop()
	}
}
