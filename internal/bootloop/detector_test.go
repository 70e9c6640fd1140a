package bootloop

import (
	"errors"
	"testing"
	"time"

	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/device"
	"github.com/muurk/nodelink/internal/store"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type restartRecorder struct {
	reasons []string
	// snapshot of the store taken at the moment of restart
	networkAtRestart string
	bootAtRestart    int
	s                store.CredentialStore
}

func (r *restartRecorder) Restart(reason string) {
	r.reasons = append(r.reasons, reason)
	if r.s != nil {
		r.networkAtRestart, _, _ = r.s.GetPair(store.NamespaceNetwork, store.KeySSID, store.KeyPassword, "", "")
		r.bootAtRestart, _ = r.s.GetInt(store.NamespaceBoot, store.KeyBootCount, 0)
	}
}

func bootCount(t *testing.T, s store.CredentialStore) int {
	t.Helper()
	n, err := s.GetInt(store.NamespaceBoot, store.KeyBootCount, 0)
	if err != nil {
		t.Fatalf("GetInt() error = %v", err)
	}
	return n
}

func TestCheck_FastBootsTriggerWipe(t *testing.T) {
	s := store.NewMemory()
	if err := s.SetPair(store.NamespaceNetwork, store.KeySSID, "homenet", store.KeyPassword, "secretpw"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPair(store.NamespaceProvisioningAP, store.KeySSID, "ap", store.KeyPassword, "longenough1"); err != nil {
		t.Fatal(err)
	}
	rec := &restartRecorder{s: s}

	// Each boot is a fresh process: new clock, new detector, same store.
	// No boot lives past the grace window.
	for boot := 1; boot <= 3; boot++ {
		c := clock.NewFake(epoch)
		got, wiped := New(s, c, rec, Options{}).Check()
		if got != boot || wiped {
			t.Fatalf("boot %d: Check() = %d, %v, want %d, false", boot, got, wiped, boot)
		}
		if bootCount(t, s) != boot {
			t.Fatalf("boot %d: persisted count = %d, want %d", boot, bootCount(t, s), boot)
		}
		c.Advance(2 * time.Second)
		if len(rec.reasons) != 0 {
			t.Fatalf("boot %d: unexpected restart %v", boot, rec.reasons)
		}
	}

	c := clock.NewFake(epoch)
	if got, wiped := New(s, c, rec, Options{}).Check(); got != 4 || !wiped {
		t.Fatalf("fourth boot: Check() = %d, %v, want 4, true", got, wiped)
	}

	if len(rec.reasons) != 1 {
		t.Fatalf("restarts = %v, want exactly one", rec.reasons)
	}
	if rec.networkAtRestart != "" || rec.bootAtRestart != 0 {
		t.Errorf("store at restart: network=%q boot=%d, want both cleared before restart",
			rec.networkAtRestart, rec.bootAtRestart)
	}
	if s.Has(store.NamespaceNetwork) || s.Has(store.NamespaceBoot) {
		t.Error("network and boot namespaces should be cleared")
	}
	if !s.Has(store.NamespaceProvisioningAP) {
		t.Error("provisioning-ap namespace must survive the wipe")
	}
	if c.Pending() != 0 {
		t.Errorf("reset scheduled on the wipe path, pending = %d", c.Pending())
	}
}

func TestCheck_SlowBootsNeverExceedOne(t *testing.T) {
	s := store.NewMemory()
	rec := &restartRecorder{}

	for boot := 1; boot <= 10; boot++ {
		c := clock.NewFake(epoch)
		if got, _ := New(s, c, rec, Options{}).Check(); got != 1 {
			t.Fatalf("boot %d: Check() = %d, want 1", boot, got)
		}
		c.Advance(DefaultGraceWindow + time.Second)
		if bootCount(t, s) != 0 {
			t.Fatalf("boot %d: count after grace window = %d, want 0", boot, bootCount(t, s))
		}
	}

	if len(rec.reasons) != 0 {
		t.Errorf("unexpected restarts %v", rec.reasons)
	}
}

func TestCheck_ResetFiresExactlyAtGraceWindow(t *testing.T) {
	s := store.NewMemory()
	c := clock.NewFake(epoch)
	New(s, c, &restartRecorder{}, Options{}).Check()

	c.Advance(DefaultGraceWindow - time.Millisecond)
	if bootCount(t, s) != 1 {
		t.Fatalf("count before grace window = %d, want 1", bootCount(t, s))
	}
	c.Advance(time.Millisecond)
	if bootCount(t, s) != 0 {
		t.Fatalf("count at grace window = %d, want 0", bootCount(t, s))
	}
}

func TestCheck_ClearFailureStillRestarts(t *testing.T) {
	s := store.NewMemory()
	if err := s.SetInt(store.NamespaceBoot, store.KeyBootCount, 3); err != nil {
		t.Fatal(err)
	}
	s.FailClear = errors.New("media error")

	var reasons []string
	New(s, clock.NewFake(epoch), device.RestartFunc(func(r string) { reasons = append(reasons, r) }), Options{}).Check()

	if len(reasons) != 1 {
		t.Fatalf("restarts = %v, want one despite clear failure", reasons)
	}
}

func TestCheck_WriteFailureIsNotFatal(t *testing.T) {
	s := store.NewMemory()
	s.FailWrites = errors.New("read-only")
	c := clock.NewFake(epoch)
	rec := &restartRecorder{}

	if got, _ := New(s, c, rec, Options{}).Check(); got != 1 {
		t.Errorf("Check() = %d, want 1", got)
	}
	c.Advance(DefaultGraceWindow)
	if len(rec.reasons) != 0 {
		t.Errorf("unexpected restarts %v", rec.reasons)
	}
}

func TestCheck_CustomOptions(t *testing.T) {
	s := store.NewMemory()
	rec := &restartRecorder{}

	New(s, clock.NewFake(epoch), rec, Options{Threshold: 2, GraceWindow: time.Minute}).Check()
	New(s, clock.NewFake(epoch), rec, Options{Threshold: 2, GraceWindow: time.Minute}).Check()

	if len(rec.reasons) != 1 {
		t.Errorf("restarts = %v, want one at threshold 2", rec.reasons)
	}
}

func TestStop_CancelsReset(t *testing.T) {
	s := store.NewMemory()
	c := clock.NewFake(epoch)
	d := New(s, c, &restartRecorder{}, Options{})
	d.Check()
	d.Stop()

	c.Advance(time.Minute)
	if bootCount(t, s) != 1 {
		t.Errorf("count after stopped reset = %d, want 1", bootCount(t, s))
	}
}
