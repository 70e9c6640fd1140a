package connection

import "fmt"

// State is the node's connection state.
type State int

const (
	// Disconnected is the initial state and the result of any failed attempt.
	Disconnected State = iota

	// Connected means the station link to the home network is up.
	Connected

	// Provisioning means the node hosts its own network and accepts credentials.
	Provisioning
)

// String returns the state name used in logs and status output.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case Provisioning:
		return "PROVISIONING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
