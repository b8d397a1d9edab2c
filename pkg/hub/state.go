package hub

// State represents the connection state
type State int

const (
	// StateDisconnected means no connection exists; Start is required.
	StateDisconnected State = iota
	// StateConnecting means the initial handshake is in progress.
	StateConnecting
	// StateConnected means the connection is live.
	StateConnected
	// StateReconnecting means the connection was lost and the backoff
	// machine is trying to restore it.
	StateReconnecting
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
