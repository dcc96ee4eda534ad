package interest

// State is the sync state of one listing's like flag.
type State int

const (
	StateIdle State = iota
	StatePending
	StateConfirmed
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[State]struct{}{
	StateIdle:       {StatePending: {}, StateConfirmed: {}},
	StatePending:    {StateConfirmed: {}, StateRolledBack: {}},
	StateConfirmed:  {StatePending: {}},
	StateRolledBack: {StatePending: {}, StateConfirmed: {}},
}

// CanTransition returns whether a like flag can move from one state to another.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}
