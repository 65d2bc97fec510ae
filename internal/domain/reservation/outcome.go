package reservation

type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// SkipReason distinguishes the two no-mutation outcomes.
type SkipReason string

const (
	SkipStaleEdition    SkipReason = "stale_edition"
	SkipTerminalNoNewer SkipReason = "terminal_no_newer_edition"
)

// Outcome is what one reconcile call reports back to its caller. RecordID is
// set for Created/Updated, Reason for Skipped, Cause for Failed.
type Outcome struct {
	Kind     OutcomeKind
	RecordID string
	Reason   SkipReason
	Cause    error
}

func Created(recordID string) Outcome {
	return Outcome{Kind: OutcomeCreated, RecordID: recordID}
}

func Updated(recordID string) Outcome {
	return Outcome{Kind: OutcomeUpdated, RecordID: recordID}
}

func Skipped(reason SkipReason) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func Failed(cause error) Outcome {
	return Outcome{Kind: OutcomeFailed, Cause: cause}
}
