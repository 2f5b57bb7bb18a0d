package session

// State is the lifecycle state of one supervised agent session.
type State string

const (
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateAuthenticated State = "authenticated"
	StateActive        State = "session_active"
	// StatePartial means the session is usable but post-connection setup
	// degraded, typically a failed diagnostics probe.
	StatePartial      State = "session_partial"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)
