// Package postgres implements the tracking store on PostgreSQL for
// shared-database deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

// RecordRepo implements reservation.RecordStore and reservation.DigestSource.
type RecordRepo struct{ pool *pgxpool.Pool }

func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo { return &RecordRepo{pool: pool} }

func (r *RecordRepo) Lookup(ctx context.Context, reservationNumber int) (reservation.RecordRef, bool, error) {
	var ref reservation.RecordRef
	err := r.pool.QueryRow(ctx,
		`SELECT id, edition, status FROM reservations WHERE reservation_number=$1`,
		reservationNumber,
	).Scan(&ref.ID, &ref.Edition, &ref.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.RecordRef{}, false, nil
	}
	if err != nil {
		return reservation.RecordRef{}, false, fmt.Errorf("lookup reservation %d: %w", reservationNumber, err)
	}
	return ref, true, nil
}

func (r *RecordRepo) Create(ctx context.Context, p reservation.Payload) (string, error) {
	id := uuid.NewString()

	cols := []string{"id", "reservation_number", "edition", "status"}
	args := []any{id, p.ReservationNumber, p.Edition, p.Status}

	bCols, bArgs, err := businessColumns(p.Business)
	if err != nil {
		return "", err
	}
	cols = append(cols, bCols...)
	args = append(args, bArgs...)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO reservations (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := r.pool.Exec(ctx, q, args...); err != nil {
		return "", fmt.Errorf("create reservation %d: %w", p.ReservationNumber, err)
	}
	return id, nil
}

func (r *RecordRepo) Update(ctx context.Context, recordID string, p reservation.Payload) error {
	sets := []string{"edition = $1", "updated_at = now()"}
	args := []any{p.Edition}

	if p.Status != "" {
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, p.Status)
	}
	bCols, bArgs, err := businessColumns(p.Business)
	if err != nil {
		return err
	}
	for i, col := range bCols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)+1))
		args = append(args, bArgs[i])
	}

	args = append(args, recordID)
	q := fmt.Sprintf("UPDATE reservations SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update record %s: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update record %s: no such record", recordID)
	}
	return nil
}

func (r *RecordRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]reservation.Upcoming, error) {
	// The column is a plain DATE; comparing against date-truncated bounds
	// keeps the window independent of the server session timezone.
	rows, err := r.pool.Query(ctx, `
SELECT reservation_number, COALESCE(order_limit, 0), COALESCE(faculty_name, ''), reservation_date, COALESCE(reserved_table, false)
FROM reservations
WHERE status=$1 AND reservation_date IS NOT NULL AND reservation_date BETWEEN $2::date AND $3::date
ORDER BY reservation_date, reservation_number`,
		reservation.StatusFutureOrder, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	defer rows.Close()

	var out []reservation.Upcoming
	for rows.Next() {
		var u reservation.Upcoming
		if err := rows.Scan(&u.ReservationNumber, &u.OrderLimit, &u.FacultyName, &u.Date, &u.ReservedTable); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func businessColumns(b *reservation.BusinessFields) ([]string, []any, error) {
	if b == nil {
		return nil, nil, nil
	}
	cols := []string{
		"order_limit", "faculty_email", "faculty_name", "reservation_date",
		"number_of_people", "reserved_table", "additional_description",
	}
	args := []any{
		b.OrderLimit, b.FacultyEmail, b.FacultyName, sqlDate(b.Date),
		b.NumberOfPeople, b.ReservedTable, b.AdditionalDescription,
	}
	if len(b.Extra) > 0 {
		raw, err := json.Marshal(b.Extra)
		if err != nil {
			return nil, nil, fmt.Errorf("encode extra fields: %w", err)
		}
		cols = append(cols, "extra")
		args = append(args, raw)
	}
	return cols, args, nil
}

// sqlDate parses the document's DD/MM/YYYY date; an unparseable value is
// stored as NULL rather than rejected.
func sqlDate(d string) any {
	t, err := time.Parse("02/01/2006", d)
	if err != nil {
		return nil
	}
	return t
}
