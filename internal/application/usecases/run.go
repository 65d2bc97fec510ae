package usecases

import (
	"context"
	"log/slog"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// JobSource supplies deduplicated intake jobs for one run.
type JobSource interface {
	Jobs(ctx context.Context) ([]reservation.Job, error)
}

// Summary counts the outcomes of one batch run.
type Summary struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// Reconciler resolves one intake job to an outcome. Reconcile satisfies it.
type Reconciler interface {
	Execute(ctx context.Context, job reservation.Job) reservation.Outcome
}

// RunBatch drains the job source through the reconciler. Jobs are
// isolated: one failed job never stops the rest. The single exception is a
// policy violation, which marks a logic defect and aborts the batch.
type RunBatch struct {
	Source    JobSource
	Reconcile Reconciler
	Audit     reservation.AuditLog
	Log       *slog.Logger

	// MaxJobs caps how many jobs are processed this run; 0 means unlimited.
	MaxJobs int
}

func (u RunBatch) Execute(ctx context.Context) (Summary, error) {
	u.audit(reservation.AuditEntry{Module: "run", Event: "run_start"})

	jobs, err := u.Source.Jobs(ctx)
	if err != nil {
		u.audit(reservation.AuditEntry{Module: "run", Event: "run_error", Message: err.Error()})
		return Summary{}, err
	}
	if u.MaxJobs > 0 && len(jobs) > u.MaxJobs {
		jobs = jobs[:u.MaxJobs]
	}

	var sum Summary
	for _, job := range jobs {
		outcome := u.Reconcile.Execute(ctx, job)
		switch outcome.Kind {
		case reservation.OutcomeCreated:
			sum.Created++
		case reservation.OutcomeUpdated:
			sum.Updated++
		case reservation.OutcomeSkipped:
			sum.Skipped++
		case reservation.OutcomeFailed:
			sum.Failed++
			if reservation.IsPolicyViolation(outcome.Cause) {
				u.audit(reservation.AuditEntry{
					Module:            "run",
					Event:             "run_aborted",
					ReservationNumber: job.ReservationNumber,
					Edition:           job.Edition,
					Message:           outcome.Cause.Error(),
				})
				return sum, outcome.Cause
			}
			u.logger().Warn("job failed",
				"reservation_number", job.ReservationNumber,
				"edition", job.Edition,
				"error", outcome.Cause)
		}
	}

	u.audit(reservation.AuditEntry{Module: "run", Event: "run_ok"})
	return sum, nil
}

func (u RunBatch) audit(e reservation.AuditEntry) {
	if u.Audit == nil {
		return
	}
	if err := u.Audit.Record(e); err != nil {
		u.logger().Warn("audit append failed", "event", e.Event, "error", err)
	}
}

func (u RunBatch) logger() *slog.Logger {
	if u.Log != nil {
		return u.Log
	}
	return slog.Default()
}
