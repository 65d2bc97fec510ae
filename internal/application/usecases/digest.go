package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// DailyDigest sends one notification listing the open reservations dated
// today or tomorrow in the configured timezone.
type DailyDigest struct {
	Store    reservation.DigestSource
	Notifier reservation.Notifier
	Audit    reservation.AuditLog
	Location *time.Location
	Log      *slog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (u DailyDigest) Execute(ctx context.Context) (int, error) {
	if u.Notifier == nil {
		return 0, nil
	}
	now := time.Now()
	if u.Now != nil {
		now = u.Now()
	}
	loc := u.Location
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 2).Add(-time.Nanosecond) // end of tomorrow

	rows, err := u.Store.ListUpcoming(ctx, from, to)
	if err != nil {
		return 0, &reservation.StoreError{Op: "lookup", Err: err}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := u.Notifier.NotifyDigest(ctx, rows); err != nil {
		u.logger().Warn("digest notification failed", "rows", len(rows), "error", err)
		return len(rows), nil
	}

	u.audit(reservation.AuditEntry{
		Module:  "digest",
		Event:   "digest_sent",
		Message: fmt.Sprintf("%d rows", len(rows)),
	})
	return len(rows), nil
}

func (u DailyDigest) audit(e reservation.AuditEntry) {
	if u.Audit == nil {
		return
	}
	if err := u.Audit.Record(e); err != nil {
		u.logger().Warn("audit append failed", "event", e.Event, "error", err)
	}
}

func (u DailyDigest) logger() *slog.Logger {
	if u.Log != nil {
		return u.Log
	}
	return slog.Default()
}
