package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Kind identifies which service a node was discovered through.
type Kind int

const (
	// KindProvisioning is a node in provisioning mode accepting credentials.
	KindProvisioning Kind = iota

	// KindUpdate is a connected node running its firmware-update listener.
	KindUpdate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindProvisioning:
		return "provisioning"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node represents a node discovered on the local network
type Node struct {
	// Instance is the advertised mDNS instance name (e.g., "nodelink-setup")
	Instance string

	// Hostname is the mDNS hostname (e.g., "nodelink.local.")
	Hostname string

	// IP is the IPv4 address (e.g., "192.168.4.1")
	IP string

	// Port is the advertised service port
	Port int

	// Kind is the service the node was found through
	Kind Kind

	// Path is the request path from the TXT record (e.g., "/provision")
	Path string

	// MAC is the hardware address from the TXT record, if advertised
	MAC string

	// Metadata contains all TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the node was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the node
func (n *Node) String() string {
	return fmt.Sprintf("%s node %s at %s", n.Kind, n.Instance, n.Address())
}

// Address returns host:port for the node
func (n *Node) Address() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}

// URL returns the endpoint a client should dial: a WebSocket URL for
// provisioning nodes, an HTTP URL for update listeners
func (n *Node) URL() string {
	scheme := "ws"
	if n.Kind == KindUpdate {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, n.Address(), n.Path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (n *Node) GetMetadata(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}
