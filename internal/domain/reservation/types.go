package reservation

// Status values the extractor is allowed to report for an incoming document.
const (
	StatusFutureOrder = "future_order"
	StatusUpdated     = "updated"
	StatusCancelled   = "cancelled"
)

// Statuses set downstream by staff. They never arrive from the extractor but
// can be found on stored records.
const (
	StatusClosed      = "closed"
	StatusInvoiceSent = "invoice_sent"
	StatusPaid        = "paid"
)

// terminalStatuses restrict further mutation: a stored record in one of these
// states is never touched by a same-or-older edition.
var terminalStatuses = map[string]bool{
	StatusClosed:      true,
	StatusCancelled:   true,
	StatusInvoiceSent: true,
	StatusPaid:        true,
}

// hardTerminalStatuses additionally freeze the status field itself, even when
// a strictly newer edition arrives.
var hardTerminalStatuses = map[string]bool{
	StatusInvoiceSent: true,
	StatusPaid:        true,
}

func IsTerminal(status string) bool { return terminalStatuses[status] }

func IsHardTerminal(status string) bool { return hardTerminalStatuses[status] }

// ValidIncomingStatus reports whether the extractor returned a status value we
// recognize on intake.
func ValidIncomingStatus(status string) bool {
	switch status {
	case StatusFutureOrder, StatusUpdated, StatusCancelled:
		return true
	}
	return false
}

// BusinessFields are the attributes extracted from the document body. The
// engine passes them through without deep validation; Extra carries anything
// the extractor returned beyond the known schema.
type BusinessFields struct {
	OrderLimit            float64
	FacultyEmail          string
	FacultyName           string
	Date                  string // DD/MM/YYYY as printed on the order
	NumberOfPeople        int
	ReservedTable         bool
	AdditionalDescription string
	Extra                 map[string]any
}

// Fields is the full structured result of extracting one document.
type Fields struct {
	ReservationNumber int
	Edition           int
	Status            string
	BusinessFields
}

// Payload is the mutation handed to the record store. Business is nil for
// cancellation notices: nothing extracted from a cancellation is trusted, so
// only the key, edition and status survive. An empty Status means the stored
// status must be left untouched.
type Payload struct {
	ReservationNumber int
	Edition           int
	Status            string
	Business          *BusinessFields
}

// BuildPayload shapes the store mutation from extracted fields. Cancellations
// are reduced to the minimal three-field form; suppressStatus drops the status
// so a hard-terminal stored status survives the update.
func BuildPayload(f Fields, suppressStatus bool) Payload {
	p := Payload{
		ReservationNumber: f.ReservationNumber,
		Edition:           f.Edition,
		Status:            f.Status,
	}
	if f.Status != StatusCancelled {
		b := f.BusinessFields
		p.Business = &b
	}
	if suppressStatus {
		p.Status = ""
	}
	return p
}
