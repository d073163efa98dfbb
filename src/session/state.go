package session

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	// Error means platform initialization failed. It is permanent.
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// ReconnectReason tells the listener why the session wants to reconnect.
type ReconnectReason int

const (
	ReconnectNetworkChanged ReconnectReason = iota
	ReconnectUnknown
)

func (r ReconnectReason) String() string {
	if r == ReconnectNetworkChanged {
		return "network changed"
	}
	return "unknown"
}
