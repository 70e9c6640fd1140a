// Package connection implements the node's connection state machine.
//
// A Manager decides, from persisted credentials, whether the node joins its
// home network or falls back to provisioning mode, where it hosts a local
// network and accepts new credentials over a provisioning Adapter.
//
// # Lifecycle
//
//	Connect ──► Disconnected ─┐
//	   │                      │  Loop: reconnect, then restart after
//	   ├──► Connected ────────┤        ReconnectRestartDelay on failure
//	   │                      │
//	   └──► Provisioning ─────┘  Loop: service the adapter
//
// The first Connect in a process runs the boot loop detector before any
// network activity. A station join is polled every PollInterval until the
// link reports connected or JoinTimeout passes. Once connected, the update
// gate is activated and serviced on every tick.
//
// # Threading
//
// A Manager is driven by a single goroutine calling Connect once and Loop
// repeatedly. Provisioning requests are answered on that goroutine when the
// adapter is serviced. Delayed restarts run on clock timers and only invoke
// the Restarter.
package connection
