// Package sqlite implements the tracking store on an embedded SQLite
// database. It suits single-host deployments and tests; the postgres package
// covers the shared-database setup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

const schema = `CREATE TABLE IF NOT EXISTS reservations (
    id TEXT PRIMARY KEY,
    reservation_number INTEGER NOT NULL UNIQUE,
    edition INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    order_limit REAL,
    faculty_email TEXT,
    faculty_name TEXT,
    reservation_date TEXT,
    number_of_people INTEGER,
    reserved_table INTEGER,
    additional_description TEXT,
    extra TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// Store implements reservation.RecordStore and reservation.DigestSource.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Lookup(ctx context.Context, reservationNumber int) (reservation.RecordRef, bool, error) {
	var ref reservation.RecordRef
	err := s.db.QueryRowContext(ctx,
		`SELECT id, edition, status FROM reservations WHERE reservation_number = ?`,
		reservationNumber,
	).Scan(&ref.ID, &ref.Edition, &ref.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return reservation.RecordRef{}, false, nil
	}
	if err != nil {
		return reservation.RecordRef{}, false, fmt.Errorf("lookup reservation %d: %w", reservationNumber, err)
	}
	return ref, true, nil
}

func (s *Store) Create(ctx context.Context, p reservation.Payload) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	cols := []string{"id", "reservation_number", "edition", "status", "created_at", "updated_at"}
	args := []any{id, p.ReservationNumber, p.Edition, p.Status, now, now}

	bCols, bArgs, err := businessColumns(p.Business)
	if err != nil {
		return "", err
	}
	cols = append(cols, bCols...)
	args = append(args, bArgs...)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO reservations (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return "", fmt.Errorf("create reservation %d: %w", p.ReservationNumber, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, recordID string, p reservation.Payload) error {
	sets := []string{"edition = ?", "updated_at = ?"}
	args := []any{p.Edition, time.Now().UTC().Format(time.RFC3339)}

	if p.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, p.Status)
	}
	bCols, bArgs, err := businessColumns(p.Business)
	if err != nil {
		return err
	}
	for i, col := range bCols {
		sets = append(sets, col+" = ?")
		args = append(args, bArgs[i])
	}

	args = append(args, recordID)
	q := fmt.Sprintf("UPDATE reservations SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update record %s: %w", recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update record %s: no such record", recordID)
	}
	return nil
}

func (s *Store) ListUpcoming(ctx context.Context, from, to time.Time) ([]reservation.Upcoming, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT reservation_number, COALESCE(order_limit, 0), COALESCE(faculty_name, ''), reservation_date, COALESCE(reserved_table, 0)
FROM reservations
WHERE status = ? AND reservation_date IS NOT NULL AND reservation_date BETWEEN ? AND ?
ORDER BY reservation_date, reservation_number`,
		reservation.StatusFutureOrder, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	defer rows.Close()

	var out []reservation.Upcoming
	for rows.Next() {
		var (
			u        reservation.Upcoming
			dateStr  string
			reserved int
		)
		if err := rows.Scan(&u.ReservationNumber, &u.OrderLimit, &u.FacultyName, &dateStr, &reserved); err != nil {
			return nil, err
		}
		u.ReservedTable = reserved != 0
		u.Date, _ = time.Parse("2006-01-02", dateStr)
		out = append(out, u)
	}
	return out, rows.Err()
}

// businessColumns maps the optional business fields to column/value pairs.
// A nil input yields nothing: the cancellation-minimized payload leaves all
// business columns untouched.
func businessColumns(b *reservation.BusinessFields) ([]string, []any, error) {
	if b == nil {
		return nil, nil, nil
	}
	cols := []string{
		"order_limit", "faculty_email", "faculty_name", "reservation_date",
		"number_of_people", "reserved_table", "additional_description",
	}
	args := []any{
		b.OrderLimit, b.FacultyEmail, b.FacultyName, isoDate(b.Date),
		b.NumberOfPeople, boolToInt(b.ReservedTable), b.AdditionalDescription,
	}
	if len(b.Extra) > 0 {
		raw, err := json.Marshal(b.Extra)
		if err != nil {
			return nil, nil, fmt.Errorf("encode extra fields: %w", err)
		}
		cols = append(cols, "extra")
		args = append(args, string(raw))
	}
	return cols, args, nil
}

// isoDate converts the document's DD/MM/YYYY date to YYYY-MM-DD for sortable
// storage. An unparseable date is stored as NULL rather than rejected.
func isoDate(d string) any {
	t, err := time.Parse("02/01/2006", d)
	if err != nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
