package escrow

// Agreement lifecycle states, in the order the ledger encodes them.
type State uint8

const (
	StateDraft State = iota
	StateSigned
	StateFunded
	StateInProgress
	StateCompleted
	StateDisputed
	StateCancelled
	StatePaidOut
)

var stateNames = map[State]string{
	StateDraft:      "draft",
	StateSigned:     "signed",
	StateFunded:     "funded",
	StateInProgress: "in_progress",
	StateCompleted:  "completed",
	StateDisputed:   "disputed",
	StateCancelled:  "cancelled",
	StatePaidOut:    "paid_out",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid state transitions: from -> []to. The ledger is the authority on
// transitions; this table only mirrors it so the client can predict the
// outcome of an action and withhold actions that cannot succeed.
var ValidTransitions = map[State][]State{
	StateDraft:      {StateSigned, StateCancelled},
	StateSigned:     {StateFunded, StateCancelled},
	StateFunded:     {StateInProgress, StateDisputed, StateCancelled},
	StateInProgress: {StateCompleted, StateDisputed, StateCancelled},
	StateCompleted:  {StatePaidOut},
	StateDisputed:   {StateCancelled, StatePaidOut},
	StateCancelled:  {},
	StatePaidOut:    {},
}

func IsValidTransition(from, to State) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can occur. A resolved
// dispute is still rendered as disputed until the next read flips the state,
// so StateDisputed is not terminal here.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StatePaidOut
}

// Historic reports whether the agreement belongs in the dashboard's history
// section rather than the active one.
func (s State) Historic() bool {
	return s == StateCompleted || s == StateDisputed || s == StateCancelled || s == StatePaidOut
}

// PredictAfterApprove returns the state the ledger will move to when one more
// milestone approval lands: approving the last outstanding milestone completes
// the agreement, any earlier approval keeps it in progress.
func PredictAfterApprove(approvedCount, milestoneCount int) State {
	if approvedCount >= milestoneCount {
		return StateCompleted
	}
	return StateInProgress
}
