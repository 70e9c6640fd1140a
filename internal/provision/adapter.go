package provision

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Property names understood by the node.
const (
	PropertySSID     = "ssid"
	PropertyPassword = "password"
	PropertyRestart  = "restart"
)

// Acknowledgements returned to the requester.
const (
	ReplySaved      = "Credentials saved."
	ReplyRestarting = "restarting in 5 seconds"
	ReplyMissing    = "Missing SSID or password"
	ReplySaveFailed = "Failed to save credentials"
)

// Request is an ephemeral property bag received from a provisioning client.
type Request map[string]string

// Property returns the value of key, or "" when absent.
func (r Request) Property(key string) string {
	if r == nil {
		return ""
	}
	return r[key]
}

// Truthy reports whether key holds exactly "true". JSON true decodes to
// that string; "1", "TRUE" and friends do not count.
func (r Request) Truthy(key string) bool {
	return r.Property(key) == "true"
}

// Handler answers one request. It must not block.
type Handler func(Request) string

// Adapter is a local command channel.
type Adapter interface {
	// OnMessage registers the single request handler, replacing any previous one.
	OnMessage(h Handler)

	// Begin starts accepting requests.
	Begin() error

	// Service runs the handler for every request received since the last
	// call. It is called from the node's tick.
	Service()

	// Close stops the channel.
	Close() error
}

// DecodeRequest parses a JSON object into a Request. Scalar values are
// converted to their string form; nested values are dropped.
func DecodeRequest(data []byte) (Request, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("invalid request: %w", err)
	}

	req := make(Request, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			req[k] = val
		case bool:
			req[k] = strconv.FormatBool(val)
		case float64:
			req[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return req, nil
}

// replyMessage is the wire form of an acknowledgement.
type replyMessage struct {
	Reply string `json:"reply"`
}
