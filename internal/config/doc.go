// Package config manages the host node configuration file.
//
// The file describes everything a simulated node needs besides its
// credentials: the credential store backend, the simulated radio and its
// visible networks, the provisioning and update listeners, and optional
// timing overrides for the connection state machine.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/nodelink/node.yaml or $HOME/.config/nodelink/node.yaml
//   - macOS: $HOME/.config/nodelink/node.yaml
//   - Windows: %LOCALAPPDATA%\nodelink\node.yaml
//
// # Example
//
//	version: 1
//	log_level: info
//	store:
//	  backend: sqlite
//	radio:
//	  networks:
//	    - ssid: homenet
//	      password: secretpw
//	      join_delay: 1.5s
//	provisioning:
//	  addr: ":8080"
//	  path: /provision
//	  advertise: true
//	update:
//	  addr: ":3232"
//	  advertise: true
//	timing:
//	  join_timeout: 10s
//
// # Security
//
// Credentials are never written here. They are persisted by the credential
// store, and secrets are masked whenever the store is printed.
package config
