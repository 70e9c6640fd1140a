// Package discovery provides mDNS-based discovery of nodelink nodes.
//
// Nodes advertise two services over multicast DNS:
//
//   - "_nodelink._tcp" while in provisioning mode. The TXT record carries the
//     WebSocket path ("path=/provision") and the node MAC ("mac=...").
//   - "_nodelink-update._tcp" while connected with the update channel
//     enabled. The instance name is the configured update hostname.
//
// # Discovery Process
//
// The discovery process works as follows:
//  1. Broadcasts mDNS queries for the requested service type
//  2. Collects advertisements until the timeout expires
//  3. Converts each entry into a Node (instance, address, port, TXT data)
//  4. Drops entries without a usable address and duplicate instances
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	nodes, err := scanner.ScanForNodes(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, node := range nodes {
//	    fmt.Printf("Found: %s at %s\n", node.Instance, node.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Nodes must be on the same local network segment; in provisioning mode
// this means joining the node's own network first
// - Firewall must allow mDNS (UDP port 5353)
package discovery
