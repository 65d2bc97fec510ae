package reservation

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkipStale
	ActionSkipTerminal
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionSkipStale:
		return "skip_stale"
	case ActionSkipTerminal:
		return "skip_terminal"
	}
	return "unknown"
}

// Decision is the outcome of the edition/status policy for one incoming job.
type Decision struct {
	Action Action

	// SuppressStatus is set when the stored status is hard-terminal: the
	// update may touch every other field but must not change status.
	SuppressStatus bool
}

// Decide applies the edition-ordering and terminal-state rules. stored is nil
// when no record exists for the reservation number.
//
// Equal editions are not newer: a strictly greater edition is required to
// update. This keeps resubmitted, unchanged documents from looping forever.
func Decide(stored *RecordRef, incomingEdition int) Decision {
	if stored == nil {
		return Decision{Action: ActionCreate}
	}
	if incomingEdition <= stored.Edition {
		if IsTerminal(stored.Status) {
			return Decision{Action: ActionSkipTerminal}
		}
		return Decision{Action: ActionSkipStale}
	}
	return Decision{
		Action:         ActionUpdate,
		SuppressStatus: IsHardTerminal(stored.Status),
	}
}
