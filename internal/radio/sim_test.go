package radio

import (
	"testing"
	"time"

	"github.com/muurk/nodelink/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSim(c clock.Clock) *Sim {
	return NewSim(SimConfig{
		Networks: []Network{
			{SSID: "homenet", Password: "secretpw", JoinDelay: time.Second, IP: "10.0.0.7"},
			{SSID: "cafe", Password: "latte123", Flaky: true},
		},
	}, c)
}

func TestSim_JoinKnownNetwork(t *testing.T) {
	c := clock.NewFake(epoch)
	r := newTestSim(c)

	if got := r.Status(); got != StatusIdle {
		t.Fatalf("Status() before join = %v, want idle", got)
	}

	if err := r.Join("homenet", "secretpw"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := r.Status(); got != StatusConnecting {
		t.Errorf("Status() right after join = %v, want connecting", got)
	}

	c.Advance(time.Second)
	if got := r.Status(); got != StatusConnected {
		t.Errorf("Status() after join delay = %v, want connected", got)
	}
	if got := r.LocalIP().String(); got != "10.0.0.7" {
		t.Errorf("LocalIP() = %v, want 10.0.0.7", got)
	}
}

func TestSim_JoinFailures(t *testing.T) {
	tests := []struct {
		name     string
		ssid     string
		password string
		want     LinkStatus
	}{
		{"wrong password", "homenet", "nope", StatusFailed},
		{"unknown network", "elsewhere", "whatever", StatusConnecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.NewFake(epoch)
			r := newTestSim(c)
			if err := r.Join(tt.ssid, tt.password); err != nil {
				t.Fatalf("Join() error = %v", err)
			}
			c.Advance(30 * time.Second)
			if got := r.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSim_JoinEmptySSID(t *testing.T) {
	r := newTestSim(clock.NewFake(epoch))
	if err := r.Join("", "pw"); err == nil {
		t.Error("Join(\"\") error = nil, want error")
	}
}

func TestSim_FlakyAndDrop(t *testing.T) {
	c := clock.NewFake(epoch)
	r := newTestSim(c)

	_ = r.Join("cafe", "latte123")
	if got := r.Status(); got != StatusConnected {
		t.Fatalf("first Status() = %v, want connected", got)
	}
	if got := r.Status(); got != StatusDisconnected {
		t.Errorf("second Status() on flaky network = %v, want disconnected", got)
	}

	_ = r.Join("homenet", "secretpw")
	c.Advance(time.Second)
	r.Drop()
	if got := r.Status(); got != StatusDisconnected {
		t.Errorf("Status() after Drop = %v, want disconnected", got)
	}
}

func TestSim_AccessPoint(t *testing.T) {
	r := newTestSim(clock.NewFake(epoch))

	if err := r.StartAccessPoint("node-ap", "short"); err == nil {
		t.Error("StartAccessPoint with short password error = nil, want error")
	}
	if err := r.StartAccessPoint("node-ap", "longenough1"); err != nil {
		t.Fatalf("StartAccessPoint() error = %v", err)
	}
	if !r.AccessPointRunning() {
		t.Error("AccessPointRunning() = false after start")
	}
	if got := r.AccessPointIP().String(); got != DefaultAccessPointIP {
		t.Errorf("AccessPointIP() = %v, want %v", got, DefaultAccessPointIP)
	}

	failing := NewSim(SimConfig{APFails: true}, clock.NewFake(epoch))
	if err := failing.StartAccessPoint("node-ap", "longenough1"); err == nil {
		t.Error("StartAccessPoint on failing radio error = nil, want error")
	}
}

func TestLinkStatus_String(t *testing.T) {
	if got := StatusConnected.String(); got != "connected" {
		t.Errorf("String() = %q, want connected", got)
	}
	if got := LinkStatus(42).String(); got != "LinkStatus(42)" {
		t.Errorf("String() = %q, want LinkStatus(42)", got)
	}
}
