// Package audit appends pipeline decisions to a monthly-rolling CSV file.
// The log is a side channel: callers tolerate append failures.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// Column order is fixed; downstream spreadsheets depend on it.
var columns = []string{
	"timestamp",
	"module",
	"event",
	"reservation_number",
	"edition",
	"filename",
	"record_id",
	"status_before",
	"status_after",
	"token_usage",
	"message",
}

// CSVLog writes one row per event to <dir>/<YYYY-MM>-reservations.csv,
// creating the file with a header row on first use each month.
type CSVLog struct {
	Dir string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

func (l *CSVLog) Record(e reservation.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(l.Dir, now.Format("2006-01")+"-reservations.csv")

	writeHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(row(now, e)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func row(now time.Time, e reservation.AuditEntry) []string {
	return []string{
		now.Format("2006-01-02T15:04:05Z07:00"),
		e.Module,
		e.Event,
		blankZero(e.ReservationNumber),
		editionField(e),
		e.Filename,
		e.RecordID,
		e.StatusBefore,
		e.StatusAfter,
		blankZero(e.TokenUsage),
		e.Message,
	}
}

func blankZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// editionEvents are the job-scoped events whose rows always carry an
// edition. Edition 0 is a real value (initial issue), so presence is keyed
// on the event rather than on the number itself.
var editionEvents = map[string]bool{
	"record_created":   true,
	"record_updated":   true,
	"skip_terminal":    true,
	"skip_old_edition": true,
	"job_error":        true,
	"run_aborted":      true,
	"extract_ok":       true,
	"res_num_mismatch": true,
	"edition_mismatch": true,
}

func editionField(e reservation.AuditEntry) string {
	if !editionEvents[e.Event] {
		return ""
	}
	return strconv.Itoa(e.Edition)
}
