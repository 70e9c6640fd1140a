// Package provision implements the local provisioning command channel.
//
// While the node hosts its local network it accepts property-bag requests
// from a provisioning client. Each request is a flat string map; each answer
// is a plain acknowledgement string. Failures are never protocol errors:
// a malformed request simply gets the "missing" acknowledgement.
//
// # Requests
//
//	{"ssid": "homenet", "password": "secretpw"}   -> "Credentials saved."
//	{"restart": "true"}                           -> "restarting in 5 seconds"
//	anything else                                 -> "Missing SSID or password"
//
// # Transport
//
// WebSocketAdapter serves the channel at ws://<node>:8080/provision. Every
// text frame is a JSON object; every reply is {"reply": "..."}. The adapter
// advertises itself over mDNS as _nodelink._tcp so provisioning clients can
// find the node without knowing its address.
//
// Connection goroutines never call the handler. They queue the request and
// wait; the node's tick goroutine drains the queue in Service, so the handler
// always runs on the same goroutine as the rest of the state machine.
//
// # Client
//
//	c, err := provision.Dial(ctx, "ws://192.168.4.1:8080/provision")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	reply, err := c.SaveCredentials(ctx, "homenet", "secretpw")
package provision
