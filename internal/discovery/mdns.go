package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/nodelink/internal/logging"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/update"
	"go.uber.org/zap"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for node discovery
	DefaultScanTimeout = 5 * time.Second
)

// ServiceType returns the mDNS service type advertised for kind
func ServiceType(kind Kind) string {
	if kind == KindUpdate {
		return update.ServiceType
	}
	return provision.ServiceType
}

// Scanner handles mDNS node discovery
type Scanner struct {
	// Timeout is the maximum time to wait for node discovery
	Timeout time.Duration

	// Kind selects the advertised service to browse for
	Kind Kind
}

// NewScanner creates a scanner for provisioning nodes with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Kind:    KindProvisioning,
	}
}

// ScanForNodes discovers all nodes advertising the scanner's service until
// the timeout expires or ctx is cancelled
func (s *Scanner) ScanForNodes(ctx context.Context) ([]*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		nodes []*Node
		seen  = make(map[string]bool)
	)

	err := s.browse(ctx, func(node *Node) bool {
		mu.Lock()
		defer mu.Unlock()
		if seen[node.Instance] {
			return false
		}
		seen[node.Instance] = true
		nodes = append(nodes, node)
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return nodes, nil
}

// WaitForNode waits for the node with the given instance name
// Returns the node or an error if not found within timeout
func (s *Scanner) WaitForNode(ctx context.Context, instance string) (*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Node, 1)
	err := s.browse(ctx, func(node *Node) bool {
		if node.Instance != instance {
			return false
		}
		select {
		case found <- node:
		default:
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case node := <-found:
		return node, nil
	default:
		return nil, fmt.Errorf("node %s not found within %s", instance, s.Timeout)
	}
}

// browse runs a resolver until ctx is done or visit returns true.
func (s *Scanner) browse(ctx context.Context, visit func(*Node) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			node := s.parseServiceEntry(entry)
			if node == nil {
				continue
			}
			logging.Debug("Discovered node",
				zap.String("instance", node.Instance),
				zap.String("address", node.Address()),
			)
			if visit(node) {
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType(s.Kind), ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once it observes the cancelled context.
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Node
// Returns nil if the entry has no usable address or port
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Node {
	if entry == nil || entry.Instance == "" || entry.Port == 0 {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	path := metadata["path"]
	if path == "" && s.Kind == KindProvisioning {
		path = provision.DefaultPath
	}

	return &Node{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Kind:         s.Kind,
		Path:         path,
		MAC:          metadata["mac"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// QuickScan performs a fast scan for provisioning nodes with a 3-second timeout
func QuickScan(ctx context.Context) ([]*Node, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.ScanForNodes(ctx)
}
