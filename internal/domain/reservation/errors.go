package reservation

import (
	"errors"
	"fmt"
)

// ExtractionError reports a document that could not be turned into valid
// fields: unreadable source, extractor outage, or output failing schema
// validation. The engine never retries these; a bounded retry policy inside
// the extractor adapter handles transient faults.
type ExtractionError struct {
	DocumentRef string
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.DocumentRef, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError reports a failed record-store call. Op is "lookup", "create" or
// "update". A StoreError guarantees no partial mutation happened.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// PolicyViolationError is an internal guard that fires if a mutation would
// decrease the stored edition or resurrect a hard-terminal status. It marks a
// logic defect, not a recoverable condition; batch runners abort on it.
type PolicyViolationError struct {
	ReservationNumber int
	Detail            string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation on reservation %d: %s", e.ReservationNumber, e.Detail)
}

// IsPolicyViolation reports whether err wraps a PolicyViolationError.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}
