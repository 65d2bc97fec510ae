package reservation

import (
	"context"
	"time"
)

// Job is one unit of intake work: an on-disk document plus the reservation
// number and edition asserted by a source more trusted than the document body
// (mail metadata or the normalized filename). The asserted values override
// whatever the extractor reports.
type Job struct {
	DocumentRef       string
	ReservationNumber int
	Edition           int
}

// RecordRef is the stored projection the engine needs to decide: the store's
// record id, the persisted edition, and the persisted status.
type RecordRef struct {
	ID      string
	Edition int
	Status  string
}

// RecordStore is the tracking database. Lookup returns found=false for an
// unknown reservation number; absence is an expected outcome, not an error.
// Create and Update are single atomic calls, no partial-field commit.
type RecordStore interface {
	Lookup(ctx context.Context, reservationNumber int) (RecordRef, bool, error)
	Create(ctx context.Context, p Payload) (recordID string, err error)
	Update(ctx context.Context, recordID string, p Payload) error
}

// DigestSource lists open reservations dated inside [from, to] for the daily
// digest. Both store backends implement it alongside RecordStore.
type DigestSource interface {
	ListUpcoming(ctx context.Context, from, to time.Time) ([]Upcoming, error)
}

// Upcoming is one digest row.
type Upcoming struct {
	ReservationNumber int
	OrderLimit        float64
	FacultyName       string
	Date              time.Time
	ReservedTable     bool
}

// Extractor turns a document into structured fields. Implementations validate
// required keys, types and the status enum at this boundary and return an
// ExtractionError on violation.
type Extractor interface {
	Extract(ctx context.Context, documentRef string) (Fields, error)
}

// ChangeKind tags outbound change notifications.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

// ChangeSummary is the human-facing digest of a created or updated record.
type ChangeSummary struct {
	ReservationNumber int
	OrderLimit        float64
	FacultyName       string
	Date              string
	ReservedTable     bool
}

// Notifier is a best-effort side channel. Failures are logged by callers and
// never abort reconciliation.
type Notifier interface {
	NotifyChange(ctx context.Context, kind ChangeKind, summary ChangeSummary) error
	NotifyDigest(ctx context.Context, rows []Upcoming) error
}

// AuditEntry is one append-only decision record. Zero-valued fields stay
// blank in the log.
type AuditEntry struct {
	Module            string
	Event             string
	ReservationNumber int
	Edition           int
	Filename          string
	RecordID          string
	StatusBefore      string
	StatusAfter       string
	TokenUsage        int
	Message           string
}

// AuditLog appends decision events. Failures are tolerated by callers,
// log-and-continue, never fatal to the pipeline.
type AuditLog interface {
	Record(e AuditEntry) error
}
