package connector

// State is the connection lifecycle state of a Connector.
type State int32

// Connector states. Any live state may move to Reconnecting; GivenUp is
// terminal.
const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribing
	Subscribed
	Reconnecting
	GivenUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Reconnecting:
		return "reconnecting"
	case GivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// active reports whether Start has nothing left to do in this state.
func (s State) active() bool {
	switch s {
	case Connecting, Connected, Subscribing, Subscribed, Reconnecting:
		return true
	default:
		return false
	}
}
