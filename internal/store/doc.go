// Package store provides the durable credential store used by the node core.
//
// The store is a namespaced key-value map. Each namespace groups a related set
// of keys (station credentials, local-network credentials, update-channel
// identity, boot counter). Every operation is atomic: a SetPair writes both
// keys or neither, and Clear removes every listed namespace or none.
//
// # Namespaces
//
//	network          ssid, password       station credentials
//	provisioning-ap  ssid, password       local-network credentials
//	update-channel   hostName, password   firmware-update listener identity
//	boot             boot_count           fast-reboot counter
//
// # Backends
//
//   - Memory: in-process maps, used by tests
//   - File: a YAML document rewritten atomically (write temp, rename)
//   - SQLite: one table, multi-key writes in a transaction
//
// Open selects a backend by name:
//
//	s, err := store.Open("sqlite", "/var/lib/nodelink/store.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
// Missing keys are never an error; getters return the supplied default.
package store
