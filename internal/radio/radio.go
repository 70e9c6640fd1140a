// Package radio defines the network radio the node core drives, plus a
// simulated radio for running a node on a host.
//
// The core only asks the radio to join a network, to report link status and
// to host a local network for provisioning. Radio-level protocols are out of
// scope.
package radio

import (
	"fmt"
	"net"
)

// LinkStatus is the station link state reported by a radio.
type LinkStatus int

const (
	StatusIdle LinkStatus = iota
	StatusConnecting
	StatusConnected
	StatusFailed
	StatusDisconnected
)

// String returns the status name.
func (s LinkStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("LinkStatus(%d)", int(s))
	}
}

// Radio is the physical network interface.
type Radio interface {
	// Join starts joining the station network. It returns once the request
	// is issued; progress is observed through Status.
	Join(ssid, password string) error

	// Status reports the live station link status.
	Status() LinkStatus

	// StartAccessPoint hosts a local network with the given credentials.
	StartAccessPoint(ssid, password string) error

	// LocalIP is the station address, valid while connected.
	LocalIP() net.IP

	// AccessPointIP is the address on the hosted local network.
	AccessPointIP() net.IP

	// MAC is the hardware address.
	MAC() string
}
