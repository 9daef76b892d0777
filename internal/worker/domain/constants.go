package domain

// Run status recorded for every consumed job
const (
	RunStatusCompleted = "COMPLETED"
	RunStatusPartial   = "PARTIAL"
	RunStatusFailed    = "FAILED"
	RunStatusDropped   = "DROPPED"
)

// State is the lifecycle position of a queue consumer
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateConsuming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConsuming:
		return "consuming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
