package radio

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/logging"
	"go.uber.org/zap"
)

// Default addresses used by the simulated radio.
const (
	DefaultStationIP     = "192.168.1.50"
	DefaultAccessPointIP = "192.168.4.1"
	DefaultMAC           = "02:00:00:4e:4c:01"
)

// Network is a station network visible to the simulated radio.
type Network struct {
	SSID      string        `yaml:"ssid"`
	Password  string        `yaml:"password"`
	JoinDelay time.Duration `yaml:"join_delay"`      // Time from Join until the link comes up
	IP        string        `yaml:"ip,omitempty"`    // Address assigned on join (default 192.168.1.50)
	Flaky     bool          `yaml:"flaky,omitempty"` // Drop the link on the status poll after it first reports connected
}

// SimConfig configures a simulated radio.
type SimConfig struct {
	MAC           string    `yaml:"mac,omitempty"`
	AccessPointIP string    `yaml:"access_point_ip,omitempty"`
	Networks      []Network `yaml:"networks,omitempty"`
	APFails       bool      `yaml:"ap_fails,omitempty"` // StartAccessPoint always fails
}

// Sim is a Radio simulated in memory.
//
// Joining a network listed in the config with the right password brings the
// link up once JoinDelay has elapsed on the clock. An unknown SSID keeps the
// radio connecting forever; a wrong password reports failed after the delay.
type Sim struct {
	cfg   SimConfig
	clock clock.Clock

	mu        sync.Mutex
	target    *Network
	password  string
	joinedAt  time.Time
	joining   bool
	dropped   bool
	reported  bool
	apSSID    string
	apRunning bool
}

// NewSim creates a simulated radio.
func NewSim(cfg SimConfig, c clock.Clock) *Sim {
	if cfg.MAC == "" {
		cfg.MAC = DefaultMAC
	}
	if cfg.AccessPointIP == "" {
		cfg.AccessPointIP = DefaultAccessPointIP
	}
	return &Sim{cfg: cfg, clock: c}
}

// Join implements Radio.
func (s *Sim) Join(ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("empty SSID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.target = nil
	for i := range s.cfg.Networks {
		if s.cfg.Networks[i].SSID == ssid {
			n := s.cfg.Networks[i]
			s.target = &n
			break
		}
	}
	s.password = password
	s.joinedAt = s.clock.Now()
	s.joining = true
	s.dropped = false
	s.reported = false

	logging.Debug("Simulated join issued",
		zap.String("ssid", ssid),
		zap.Bool("visible", s.target != nil),
	)
	return nil
}

// Status implements Radio.
func (s *Sim) Status() LinkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.joining {
		return StatusIdle
	}
	if s.dropped {
		return StatusDisconnected
	}
	if s.target == nil {
		return StatusConnecting
	}
	if s.clock.Now().Sub(s.joinedAt) < s.target.JoinDelay {
		return StatusConnecting
	}
	if s.password != s.target.Password {
		return StatusFailed
	}
	if s.target.Flaky && s.reported {
		s.dropped = true
		return StatusDisconnected
	}
	s.reported = true
	return StatusConnected
}

// Drop simulates loss of the station link.
func (s *Sim) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joining {
		s.dropped = true
	}
}

// StartAccessPoint implements Radio.
func (s *Sim) StartAccessPoint(ssid, password string) error {
	if s.cfg.APFails {
		return fmt.Errorf("access point %q could not be started", ssid)
	}
	if len(password) < 8 {
		return fmt.Errorf("access point password too short")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apSSID = ssid
	s.apRunning = true
	return nil
}

// AccessPointRunning reports whether a local network is hosted.
func (s *Sim) AccessPointRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apRunning
}

// LocalIP implements Radio.
func (s *Sim) LocalIP() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil || s.target.IP == "" {
		return net.ParseIP(DefaultStationIP)
	}
	return net.ParseIP(s.target.IP)
}

// AccessPointIP implements Radio.
func (s *Sim) AccessPointIP() net.IP {
	return net.ParseIP(s.cfg.AccessPointIP)
}

// MAC implements Radio.
func (s *Sim) MAC() string {
	return s.cfg.MAC
}
