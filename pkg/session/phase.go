package session

// Phase is the connection lifecycle state of a session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseSubscribing
	PhaseLive
	PhaseReconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseSubscribing:
		return "subscribing"
	case PhaseLive:
		return "live"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event drives phase transitions.
type Event int

const (
	// EventDial is raised when the machine starts a connection attempt,
	// either initially or after a backoff delay.
	EventDial Event = iota
	// EventConnected is raised on transport-level connect success.
	EventConnected
	// EventSubscribed is raised once every desired subscription has been
	// acknowledged or produced its first frame.
	EventSubscribed
	// EventStale is raised when no inbound traffic arrives within the
	// staleness timeout.
	EventStale
	// EventTransportError is raised on a socket error or remote close.
	EventTransportError
	// EventClose is raised by an explicit Close call only. Network loss
	// never produces it.
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventDial:
		return "dial"
	case EventConnected:
		return "connected"
	case EventSubscribed:
		return "subscribed"
	case EventStale:
		return "stale"
	case EventTransportError:
		return "transport_error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// next is the pure transition function. Events that are not meaningful in
// the current phase leave it unchanged; Closed is terminal.
func next(p Phase, e Event) Phase {
	if p == PhaseClosed {
		return PhaseClosed
	}
	switch e {
	case EventClose:
		return PhaseClosed
	case EventDial:
		if p == PhaseDisconnected || p == PhaseReconnecting {
			return PhaseConnecting
		}
	case EventConnected:
		if p == PhaseConnecting {
			return PhaseSubscribing
		}
	case EventSubscribed:
		if p == PhaseSubscribing {
			return PhaseLive
		}
	case EventStale, EventTransportError:
		switch p {
		case PhaseConnecting, PhaseSubscribing, PhaseLive:
			return PhaseReconnecting
		}
	}
	return p
}
