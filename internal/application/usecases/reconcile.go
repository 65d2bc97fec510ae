package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// Reconcile resolves one intake job against the record store: create, update
// or skip, under the edition-ordering and terminal-state rules. Collaborators
// are injected; the usecase owns no I/O of its own.
type Reconcile struct {
	Store     reservation.RecordStore
	Extractor reservation.Extractor
	Notifier  reservation.Notifier
	Audit     reservation.AuditLog
	Log       *slog.Logger
}

const moduleName = "reconcile"

func (u Reconcile) Execute(ctx context.Context, job reservation.Job) reservation.Outcome {
	log := u.logger().With(
		"reservation_number", job.ReservationNumber,
		"edition", job.Edition,
	)

	ref, found, err := u.Store.Lookup(ctx, job.ReservationNumber)
	if err != nil {
		return u.failed(job, &reservation.StoreError{Op: "lookup", Err: err})
	}

	var stored *reservation.RecordRef
	if found {
		stored = &ref
	}
	decision := reservation.Decide(stored, job.Edition)

	// Terminal records with no newer edition are skipped before extraction is
	// even attempted: the document cannot change anything, so its extraction
	// cost is saved.
	if decision.Action == reservation.ActionSkipTerminal {
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "skip_terminal",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			RecordID:          ref.ID,
			StatusBefore:      ref.Status,
			Message:           fmt.Sprintf("stored_edition=%d", ref.Edition),
		})
		return reservation.Skipped(reservation.SkipTerminalNoNewer)
	}

	fields, err := u.Extractor.Extract(ctx, job.DocumentRef)
	if err != nil {
		if _, ok := err.(*reservation.ExtractionError); !ok {
			err = &reservation.ExtractionError{DocumentRef: job.DocumentRef, Err: err}
		}
		return u.failed(job, err)
	}

	// The asserted reservation number and edition come from a more trusted
	// source than the document body; they always win over extractor output.
	// A disagreement is still worth an audit row, the operator should know
	// the document body and the filename diverged.
	if fields.ReservationNumber != job.ReservationNumber {
		log.Warn("extractor disagrees with asserted reservation number",
			"extracted", fields.ReservationNumber)
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "res_num_mismatch",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			Filename:          filepath.Base(job.DocumentRef),
			Message:           fmt.Sprintf("extracted=%d", fields.ReservationNumber),
		})
	}
	if fields.Edition != job.Edition {
		log.Warn("extractor disagrees with asserted edition",
			"extracted", fields.Edition)
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "edition_mismatch",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			Filename:          filepath.Base(job.DocumentRef),
			Message:           fmt.Sprintf("extracted=%d", fields.Edition),
		})
	}
	fields.ReservationNumber = job.ReservationNumber
	fields.Edition = job.Edition

	payload := reservation.BuildPayload(fields, decision.SuppressStatus)

	switch decision.Action {
	case reservation.ActionCreate:
		id, err := u.Store.Create(ctx, payload)
		if err != nil {
			return u.failed(job, &reservation.StoreError{Op: "create", Err: err})
		}
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "record_created",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			Filename:          filepath.Base(job.DocumentRef),
			RecordID:          id,
			StatusAfter:       payload.Status,
		})
		u.notify(ctx, reservation.ChangeCreated, payload)
		return reservation.Created(id)

	case reservation.ActionUpdate:
		if err := u.guardUpdate(ref, payload); err != nil {
			return u.failed(job, err)
		}
		if err := u.Store.Update(ctx, ref.ID, payload); err != nil {
			return u.failed(job, &reservation.StoreError{Op: "update", Err: err})
		}
		statusAfter := payload.Status
		if statusAfter == "" {
			statusAfter = ref.Status
		}
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "record_updated",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			Filename:          filepath.Base(job.DocumentRef),
			RecordID:          ref.ID,
			StatusBefore:      ref.Status,
			StatusAfter:       statusAfter,
		})
		u.notify(ctx, reservation.ChangeUpdated, payload)
		return reservation.Updated(ref.ID)

	default: // ActionSkipStale
		u.audit(reservation.AuditEntry{
			Module:            moduleName,
			Event:             "skip_old_edition",
			ReservationNumber: job.ReservationNumber,
			Edition:           job.Edition,
			RecordID:          ref.ID,
			Message:           fmt.Sprintf("stored_edition=%d", ref.Edition),
		})
		return reservation.Skipped(reservation.SkipStaleEdition)
	}
}

// guardUpdate is a last-line assertion against logic defects: a mutation must
// never lower the stored edition or rewrite a hard-terminal status.
func (u Reconcile) guardUpdate(stored reservation.RecordRef, p reservation.Payload) error {
	if p.Edition <= stored.Edition {
		return &reservation.PolicyViolationError{
			ReservationNumber: p.ReservationNumber,
			Detail:            fmt.Sprintf("edition %d would not advance stored edition %d", p.Edition, stored.Edition),
		}
	}
	if reservation.IsHardTerminal(stored.Status) && p.Status != "" && p.Status != stored.Status {
		return &reservation.PolicyViolationError{
			ReservationNumber: p.ReservationNumber,
			Detail:            fmt.Sprintf("status %q would overwrite hard-terminal %q", p.Status, stored.Status),
		}
	}
	return nil
}

// notify fires the best-effort change alert. A sink failure is logged and
// swallowed; the record of truth is already written.
func (u Reconcile) notify(ctx context.Context, kind reservation.ChangeKind, p reservation.Payload) {
	if u.Notifier == nil {
		return
	}
	summary := reservation.ChangeSummary{ReservationNumber: p.ReservationNumber}
	if p.Business != nil {
		summary.OrderLimit = p.Business.OrderLimit
		summary.FacultyName = p.Business.FacultyName
		summary.Date = p.Business.Date
		summary.ReservedTable = p.Business.ReservedTable
	}
	if err := u.Notifier.NotifyChange(ctx, kind, summary); err != nil {
		u.logger().Warn("change notification failed", "kind", kind, "error", err)
	}
}

func (u Reconcile) failed(job reservation.Job, cause error) reservation.Outcome {
	u.audit(reservation.AuditEntry{
		Module:            moduleName,
		Event:             "job_error",
		ReservationNumber: job.ReservationNumber,
		Edition:           job.Edition,
		Filename:          filepath.Base(job.DocumentRef),
		Message:           cause.Error(),
	})
	return reservation.Failed(cause)
}

func (u Reconcile) audit(e reservation.AuditEntry) {
	if u.Audit == nil {
		return
	}
	if err := u.Audit.Record(e); err != nil {
		u.logger().Warn("audit append failed", "event", e.Event, "error", err)
	}
}

func (u Reconcile) logger() *slog.Logger {
	if u.Log != nil {
		return u.Log
	}
	return slog.Default()
}
