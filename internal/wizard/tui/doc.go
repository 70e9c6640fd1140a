// Package tui implements the interactive provisioning wizard for nodelink-cfg.
//
// Built on Bubble Tea, the wizard follows the Elm architecture: each screen
// is a model with Update and View, and AppModel coordinates transitions.
//
// # Screen Flow
//
//  1. Discovery: scans for nodes advertising _nodelink._tcp and lists them
//     as cards. A node address can be entered manually when multicast is
//     unavailable.
//  2. Form: collects the home network SSID and password, with an option to
//     restart the node after saving. Sending dials the node's WebSocket
//     endpoint, saves the credentials and, if requested, asks it to restart.
//  3. Success/Failure: shows the node's replies or the error, with options
//     to edit and resend, rediscover or quit.
//
// # Framework Components
//
//   - bubbles/spinner: scan and send indicators
//   - bubbles/progress: scan progress
//   - bubbles/textinput: SSID, password and manual address entry
//   - bubbles/list: node cards with filtering
//   - bubbles/help, bubbles/key: context-aware key bindings
//   - lipgloss: styling and layout
//
// # Testing
//
// Network operations are injected through Services, so screens can be driven
// in tests by feeding messages to Update and running the returned commands.
package tui
