// Package node runs a simulated nodelink device as a host process.
//
// A Runtime owns the parts of a node that survive a restart (the credential
// store, the clock and the restarter) and boots a fresh lifetime on top of
// them: a simulated radio, the WebSocket provisioning adapter, the HTTP update
// listener and a connection.Manager driving them. The lifetime is ticked at
// the configured interval until the node asks to restart, at which point it
// is torn down and booted again against the same store.
//
// # Lifecycle
//
//	New ──▶ Run ──▶ boot ──▶ Connect ──▶ tick Loop ─┬─▶ restart request ──▶ shutdown ──▶ boot
//	                                                └─▶ ctx done / signal ──▶ shutdown ──▶ return
//
// A restart request can come from the boot-loop detector, a provisioning
// restart command, a failed reconnection or a staged firmware image.
//
// # Usage Example
//
//	cfg, _, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	rt := node.New(cfg, st)
//	return rt.Start()
//
// # Thread Safety
//
// Connect and Loop run on the goroutine calling Run. The snapshot accessors
// (State, Boots, ProvisioningURL, UpdateAddr) are safe to call from any
// goroutine.
package node
