package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// fakeStore is an in-memory RecordStore keyed by reservation number.
type fakeStore struct {
	records   map[int]*storedRecord
	nextID    int
	lookupErr error
	createErr error
	updateErr error
	mutations int
}

type storedRecord struct {
	id      string
	payload reservation.Payload
	status  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[int]*storedRecord{}}
}

func (s *fakeStore) Lookup(_ context.Context, resNum int) (reservation.RecordRef, bool, error) {
	if s.lookupErr != nil {
		return reservation.RecordRef{}, false, s.lookupErr
	}
	rec, ok := s.records[resNum]
	if !ok {
		return reservation.RecordRef{}, false, nil
	}
	return reservation.RecordRef{ID: rec.id, Edition: rec.payload.Edition, Status: rec.status}, true, nil
}

func (s *fakeStore) Create(_ context.Context, p reservation.Payload) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	s.mutations++
	id := fmt.Sprintf("rec-%d", s.nextID)
	s.records[p.ReservationNumber] = &storedRecord{id: id, payload: p, status: p.Status}
	return id, nil
}

func (s *fakeStore) Update(_ context.Context, recordID string, p reservation.Payload) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, rec := range s.records {
		if rec.id == recordID {
			s.mutations++
			status := rec.status
			if p.Status != "" {
				status = p.Status
			}
			rec.payload = p
			rec.status = status
			return nil
		}
	}
	return errors.New("record not found")
}

// seed installs a stored record directly, bypassing the engine.
func (s *fakeStore) seed(resNum, edition int, status string) {
	s.nextID++
	s.records[resNum] = &storedRecord{
		id:      fmt.Sprintf("rec-%d", s.nextID),
		payload: reservation.Payload{ReservationNumber: resNum, Edition: edition, Status: status},
		status:  status,
	}
}

type fakeExtractor struct {
	fields reservation.Fields
	err    error
	calls  int
}

func (e *fakeExtractor) Extract(context.Context, string) (reservation.Fields, error) {
	e.calls++
	if e.err != nil {
		return reservation.Fields{}, e.err
	}
	return e.fields, nil
}

type notification struct {
	kind    reservation.ChangeKind
	summary reservation.ChangeSummary
}

type fakeNotifier struct {
	sent []notification
	err  error
}

func (n *fakeNotifier) NotifyChange(_ context.Context, kind reservation.ChangeKind, s reservation.ChangeSummary) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{kind: kind, summary: s})
	return nil
}

func (n *fakeNotifier) NotifyDigest(context.Context, []reservation.Upcoming) error {
	return n.err
}

type fakeAudit struct {
	entries []reservation.AuditEntry
	err     error
}

func (a *fakeAudit) Record(e reservation.AuditEntry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) events() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

func extractedFields(resNum, edition int, status string) reservation.Fields {
	return reservation.Fields{
		ReservationNumber: resNum,
		Edition:           edition,
		Status:            status,
		BusinessFields: reservation.BusinessFields{
			OrderLimit:     500,
			FacultyEmail:   "cs@example.edu",
			FacultyName:    "Computer Science",
			Date:           "14/09/2026",
			NumberOfPeople: 20,
			ReservedTable:  true,
		},
	}
}

func newReconcile(store *fakeStore, ex *fakeExtractor, n *fakeNotifier, a *fakeAudit) Reconcile {
	return Reconcile{Store: store, Extractor: ex, Notifier: n, Audit: a}
}

func job(resNum, edition int) reservation.Job {
	return reservation.Job{
		DocumentRef:       fmt.Sprintf("downloads/RES_%d_%d.pdf", resNum, edition),
		ReservationNumber: resNum,
		Edition:           edition,
	}
}

func TestReconcileCreatesFirstSighting(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, notifier, audit)

	out := uc.Execute(context.Background(), job(1001, 0))

	require.Equal(t, reservation.OutcomeCreated, out.Kind)
	assert.NotEmpty(t, out.RecordID)

	rec := store.records[1001]
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.payload.Edition)
	assert.Equal(t, reservation.StatusFutureOrder, rec.status)
	assert.Equal(t, 500.0, rec.payload.Business.OrderLimit)

	assert.Equal(t, []string{"record_created"}, audit.events())
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, reservation.ChangeCreated, notifier.sent[0].kind)
	assert.Equal(t, 1001, notifier.sent[0].summary.ReservationNumber)
}

func TestReconcileUpdatesNewerEdition(t *testing.T) {
	store := newFakeStore()
	store.seed(1001, 0, reservation.StatusFutureOrder)
	ex := &fakeExtractor{fields: extractedFields(1001, 1, reservation.StatusUpdated)}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, notifier, audit)

	out := uc.Execute(context.Background(), job(1001, 1))

	require.Equal(t, reservation.OutcomeUpdated, out.Kind)
	rec := store.records[1001]
	assert.Equal(t, 1, rec.payload.Edition)
	assert.Equal(t, reservation.StatusUpdated, rec.status)
	assert.Equal(t, []string{"record_updated"}, audit.events())
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, reservation.ChangeUpdated, notifier.sent[0].kind)
}

func TestReconcileHardTerminalKeepsStatus(t *testing.T) {
	// Newer edition on a paid record: non-status fields move, status stays.
	store := newFakeStore()
	store.seed(1001, 1, reservation.StatusPaid)
	fields := extractedFields(1001, 2, reservation.StatusUpdated)
	fields.OrderLimit = 700
	ex := &fakeExtractor{fields: fields}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, &fakeNotifier{}, audit)

	out := uc.Execute(context.Background(), job(1001, 2))

	require.Equal(t, reservation.OutcomeUpdated, out.Kind)
	rec := store.records[1001]
	assert.Equal(t, reservation.StatusPaid, rec.status)
	assert.Equal(t, 2, rec.payload.Edition)
	assert.Equal(t, 700.0, rec.payload.Business.OrderLimit)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, reservation.StatusPaid, audit.entries[0].StatusBefore)
	assert.Equal(t, reservation.StatusPaid, audit.entries[0].StatusAfter)
}

func TestReconcileTerminalSkipSkipsExtraction(t *testing.T) {
	// Older edition on a closed record: skip before touching the extractor.
	store := newFakeStore()
	store.seed(1001, 2, reservation.StatusClosed)
	ex := &fakeExtractor{fields: extractedFields(1001, 1, reservation.StatusUpdated)}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, notifier, audit)

	out := uc.Execute(context.Background(), job(1001, 1))

	require.Equal(t, reservation.OutcomeSkipped, out.Kind)
	assert.Equal(t, reservation.SkipTerminalNoNewer, out.Reason)
	assert.Zero(t, ex.calls)
	assert.Zero(t, store.mutations)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []string{"skip_terminal"}, audit.events())
}

func TestReconcileEqualEditionIsStale(t *testing.T) {
	store := newFakeStore()
	store.seed(1001, 3, reservation.StatusFutureOrder)
	ex := &fakeExtractor{fields: extractedFields(1001, 3, reservation.StatusUpdated)}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, notifier, audit)

	out := uc.Execute(context.Background(), job(1001, 3))

	require.Equal(t, reservation.OutcomeSkipped, out.Kind)
	assert.Equal(t, reservation.SkipStaleEdition, out.Reason)
	assert.Zero(t, store.mutations)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []string{"skip_old_edition"}, audit.events())
}

func TestReconcileIdempotentResubmission(t *testing.T) {
	// Same (reservation, edition, document) twice: second call is a stale
	// skip with zero store mutation.
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
	uc := newReconcile(store, ex, &fakeNotifier{}, &fakeAudit{})

	first := uc.Execute(context.Background(), job(1001, 0))
	require.Equal(t, reservation.OutcomeCreated, first.Kind)
	mutationsAfterCreate := store.mutations

	second := uc.Execute(context.Background(), job(1001, 0))
	require.Equal(t, reservation.OutcomeSkipped, second.Kind)
	assert.Equal(t, reservation.SkipStaleEdition, second.Reason)
	assert.Equal(t, mutationsAfterCreate, store.mutations)
}

func TestReconcileCancellationMinimization(t *testing.T) {
	store := newFakeStore()
	store.seed(1001, 0, reservation.StatusFutureOrder)
	ex := &fakeExtractor{fields: extractedFields(1001, 1, reservation.StatusCancelled)}
	uc := newReconcile(store, ex, &fakeNotifier{}, &fakeAudit{})

	out := uc.Execute(context.Background(), job(1001, 1))

	require.Equal(t, reservation.OutcomeUpdated, out.Kind)
	rec := store.records[1001]
	assert.Equal(t, reservation.StatusCancelled, rec.status)
	assert.Equal(t, 1, rec.payload.Edition)
	assert.Nil(t, rec.payload.Business, "cancellation must persist only the minimal fields")
}

func TestReconcileAssertedValuesWin(t *testing.T) {
	// Extractor reports a different reservation number and edition; the
	// asserted values from intake override both.
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(9999, 5, reservation.StatusFutureOrder)}
	uc := newReconcile(store, ex, &fakeNotifier{}, &fakeAudit{})

	out := uc.Execute(context.Background(), job(1001, 0))

	require.Equal(t, reservation.OutcomeCreated, out.Kind)
	rec := store.records[1001]
	require.NotNil(t, rec)
	assert.Equal(t, 1001, rec.payload.ReservationNumber)
	assert.Equal(t, 0, rec.payload.Edition)
}

func TestReconcileMismatchAudited(t *testing.T) {
	// Extractor output and asserted values diverge: the asserted pair still
	// wins, and each discrepancy lands in the audit trail.
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(9999, 5, reservation.StatusFutureOrder)}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, &fakeNotifier{}, audit)

	out := uc.Execute(context.Background(), job(1001, 0))

	require.Equal(t, reservation.OutcomeCreated, out.Kind)
	assert.Contains(t, audit.events(), "res_num_mismatch")
	assert.Contains(t, audit.events(), "edition_mismatch")
	for _, e := range audit.entries {
		switch e.Event {
		case "res_num_mismatch":
			assert.Equal(t, 1001, e.ReservationNumber)
			assert.Equal(t, "extracted=9999", e.Message)
		case "edition_mismatch":
			assert.Equal(t, 0, e.Edition)
			assert.Equal(t, "extracted=5", e.Message)
		}
	}
}

func TestReconcileExtractionFailure(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{err: errors.New("malformed document")}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	uc := newReconcile(store, ex, notifier, audit)

	out := uc.Execute(context.Background(), job(1001, 0))

	require.Equal(t, reservation.OutcomeFailed, out.Kind)
	var exErr *reservation.ExtractionError
	assert.ErrorAs(t, out.Cause, &exErr)
	assert.Zero(t, store.mutations)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []string{"job_error"}, audit.events())
}

func TestReconcileStoreFailures(t *testing.T) {
	t.Run("lookup failure", func(t *testing.T) {
		store := newFakeStore()
		store.lookupErr = errors.New("connection refused")
		ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
		uc := newReconcile(store, ex, &fakeNotifier{}, &fakeAudit{})

		out := uc.Execute(context.Background(), job(1001, 0))
		require.Equal(t, reservation.OutcomeFailed, out.Kind)
		var stErr *reservation.StoreError
		require.ErrorAs(t, out.Cause, &stErr)
		assert.Equal(t, "lookup", stErr.Op)
		assert.Zero(t, ex.calls, "no extraction after a failed lookup")
	})

	t.Run("create failure leaves store unmutated", func(t *testing.T) {
		store := newFakeStore()
		store.createErr = errors.New("insert rejected")
		ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
		notifier := &fakeNotifier{}
		uc := newReconcile(store, ex, notifier, &fakeAudit{})

		out := uc.Execute(context.Background(), job(1001, 0))
		require.Equal(t, reservation.OutcomeFailed, out.Kind)
		var stErr *reservation.StoreError
		require.ErrorAs(t, out.Cause, &stErr)
		assert.Equal(t, "create", stErr.Op)
		assert.Zero(t, store.mutations)
		assert.Empty(t, notifier.sent)
	})
}

func TestReconcileNotifierFailureDoesNotPropagate(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
	notifier := &fakeNotifier{err: errors.New("chat unreachable")}
	uc := newReconcile(store, ex, notifier, &fakeAudit{})

	out := uc.Execute(context.Background(), job(1001, 0))

	require.Equal(t, reservation.OutcomeCreated, out.Kind)
	assert.NotNil(t, store.records[1001])
}

func TestReconcileAuditFailureDoesNotPropagate(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)}
	audit := &fakeAudit{err: errors.New("disk full")}
	uc := newReconcile(store, ex, &fakeNotifier{}, audit)

	out := uc.Execute(context.Background(), job(1001, 0))
	require.Equal(t, reservation.OutcomeCreated, out.Kind)
}

func TestReconcileMonotonicSequence(t *testing.T) {
	// Editions 0,1,1,3 in order: stored edition ends at the maximum seen.
	store := newFakeStore()
	uc := newReconcile(store, nil, &fakeNotifier{}, &fakeAudit{})

	for _, ed := range []int{0, 1, 1, 3} {
		uc.Extractor = &fakeExtractor{fields: extractedFields(1001, ed, reservation.StatusFutureOrder)}
		uc.Execute(context.Background(), job(1001, ed))
	}

	assert.Equal(t, 3, store.records[1001].payload.Edition)
}

func TestGuardUpdate(t *testing.T) {
	stored := reservation.RecordRef{ID: "rec-1", Edition: 2, Status: reservation.StatusPaid}
	uc := Reconcile{}

	t.Run("non-advancing edition is a violation", func(t *testing.T) {
		p := reservation.Payload{ReservationNumber: 1001, Edition: 2, Status: reservation.StatusUpdated}
		err := uc.guardUpdate(stored, p)
		require.Error(t, err)
		assert.True(t, reservation.IsPolicyViolation(err))
	})

	t.Run("hard-terminal status rewrite is a violation", func(t *testing.T) {
		p := reservation.Payload{ReservationNumber: 1001, Edition: 3, Status: reservation.StatusUpdated}
		err := uc.guardUpdate(stored, p)
		require.Error(t, err)
		assert.True(t, reservation.IsPolicyViolation(err))
	})

	t.Run("suppressed status on hard-terminal passes", func(t *testing.T) {
		p := reservation.Payload{ReservationNumber: 1001, Edition: 3}
		assert.NoError(t, uc.guardUpdate(stored, p))
	})

	t.Run("advancing edition on open record passes", func(t *testing.T) {
		open := reservation.RecordRef{ID: "rec-2", Edition: 0, Status: reservation.StatusFutureOrder}
		p := reservation.Payload{ReservationNumber: 1002, Edition: 1, Status: reservation.StatusUpdated}
		assert.NoError(t, uc.guardUpdate(open, p))
	})
}

// scriptedReconciler returns canned outcomes in order.
type scriptedReconciler struct {
	outcomes []reservation.Outcome
	calls    int
}

func (r *scriptedReconciler) Execute(context.Context, reservation.Job) reservation.Outcome {
	o := r.outcomes[r.calls]
	r.calls++
	return o
}

func TestRunBatchAbortsOnPolicyViolation(t *testing.T) {
	audit := &fakeAudit{}
	violation := &reservation.PolicyViolationError{
		ReservationNumber: 1002,
		Detail:            "edition 1 would not advance stored edition 1",
	}
	rec := &scriptedReconciler{outcomes: []reservation.Outcome{
		reservation.Created("rec-1"),
		reservation.Failed(violation),
		reservation.Created("rec-3"),
	}}
	batch := RunBatch{
		Source:    staticSource{jobs: []reservation.Job{job(1001, 0), job(1002, 1), job(1003, 0)}},
		Reconcile: rec,
		Audit:     audit,
	}

	sum, err := batch.Execute(context.Background())

	require.Error(t, err)
	assert.True(t, reservation.IsPolicyViolation(err))
	assert.Equal(t, Summary{Created: 1, Failed: 1}, sum)
	assert.Equal(t, 2, rec.calls, "remaining jobs must not run")
	assert.Contains(t, audit.events(), "run_aborted")
	assert.NotContains(t, audit.events(), "run_ok")
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}

	// First job's document extraction fails, the second succeeds.
	ex := &sequencedExtractor{
		results: []extractResult{
			{err: errors.New("unreadable")},
			{fields: extractedFields(1002, 0, reservation.StatusFutureOrder)},
		},
	}
	batch := RunBatch{
		Source: staticSource{jobs: []reservation.Job{job(1001, 0), job(1002, 0)}},
		Reconcile: Reconcile{
			Store: store, Extractor: ex, Notifier: &fakeNotifier{}, Audit: audit,
		},
		Audit: audit,
	}

	sum, err := batch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1, Failed: 1}, sum)
	assert.NotNil(t, store.records[1002])
	assert.Contains(t, audit.events(), "run_start")
	assert.Contains(t, audit.events(), "run_ok")
}

func TestRunBatchHonorsMaxJobs(t *testing.T) {
	store := newFakeStore()
	ex := &sequencedExtractor{
		results: []extractResult{
			{fields: extractedFields(1001, 0, reservation.StatusFutureOrder)},
		},
	}
	batch := RunBatch{
		Source:    staticSource{jobs: []reservation.Job{job(1001, 0), job(1002, 0)}},
		Reconcile: Reconcile{Store: store, Extractor: ex, Notifier: &fakeNotifier{}, Audit: &fakeAudit{}},
		MaxJobs:   1,
	}

	sum, err := batch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1}, sum)
	assert.Nil(t, store.records[1002])
}

type staticSource struct{ jobs []reservation.Job }

func (s staticSource) Jobs(context.Context) ([]reservation.Job, error) { return s.jobs, nil }

type extractResult struct {
	fields reservation.Fields
	err    error
}

type sequencedExtractor struct {
	results []extractResult
	idx     int
}

func (e *sequencedExtractor) Extract(context.Context, string) (reservation.Fields, error) {
	if e.idx >= len(e.results) {
		return reservation.Fields{}, errors.New("unexpected extract call")
	}
	r := e.results[e.idx]
	e.idx++
	return r.fields, r.err
}
