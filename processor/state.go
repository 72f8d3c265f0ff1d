package processor

// State tracks a message through the processing pipeline. The intermediate
// states mark the last stage a message cleared, so a failure log names where
// it died; scoring happens inside normalization and has no state of its own.
// Terminal states are Persisted (acked), Discarded (acked, nothing stored)
// and Failed (nak'd for redelivery or dead-lettered).
type State int

const (
	StateReceived State = iota
	StateParsed
	StateNormalized
	StateIdentityResolved
	StatePersisted
	StateDiscarded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateParsed:
		return "parsed"
	case StateNormalized:
		return "normalized"
	case StateIdentityResolved:
		return "identity_resolved"
	case StatePersisted:
		return "persisted"
	case StateDiscarded:
		return "discarded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
