package owl

// Phase is the connection state of a Context.
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseConnecting
	PhaseHandshake
	PhaseOpen
	PhaseInitializing
	PhaseInitialized
	PhaseFlushing
)

func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseConnecting:
		return "connecting"
	case PhaseHandshake:
		return "handshake"
	case PhaseOpen:
		return "open"
	case PhaseInitializing:
		return "initializing"
	case PhaseInitialized:
		return "initialized"
	case PhaseFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Status is the result of a lifecycle call.
type Status int

const (
	Failed  Status = -1
	Pending Status = 0
	Ready   Status = 1
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}
