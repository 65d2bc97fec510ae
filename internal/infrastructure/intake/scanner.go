// Package intake turns downloaded documents into reconciliation jobs. The
// mail fetcher normalizes attachments to RES_<reservation>_<edition>.pdf, so
// the filename is the trusted source for both numbers.
package intake

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/example/reservation-intake/internal/domain/reservation"
)

var fileNameRE = regexp.MustCompile(`(?i)^RES_(\d+)_(\d+)\.pdf$`)

// Scanner lists jobs from a directory of downloaded documents. Files whose
// names do not parse are audited and skipped; exact (reservation, edition)
// duplicates are dropped so the engine sees each pair once per run.
type Scanner struct {
	Dir   string
	Audit reservation.AuditLog
	Log   *slog.Logger
}

func (s Scanner) Jobs(ctx context.Context) ([]reservation.Job, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	type key struct{ resNum, edition int }
	seen := map[key]bool{}
	var jobs []reservation.Job

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		m := fileNameRE.FindStringSubmatch(entry.Name())
		if m == nil {
			s.auditParseFail(entry.Name())
			continue
		}
		resNum, err := strconv.Atoi(m[1])
		if err != nil || resNum <= 0 {
			s.auditParseFail(entry.Name())
			continue
		}
		edition, err := strconv.Atoi(m[2])
		if err != nil {
			s.auditParseFail(entry.Name())
			continue
		}

		k := key{resNum, edition}
		if seen[k] {
			continue
		}
		seen[k] = true

		jobs = append(jobs, reservation.Job{
			DocumentRef:       filepath.Join(s.Dir, entry.Name()),
			ReservationNumber: resNum,
			Edition:           edition,
		})
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].ReservationNumber != jobs[j].ReservationNumber {
			return jobs[i].ReservationNumber < jobs[j].ReservationNumber
		}
		return jobs[i].Edition < jobs[j].Edition
	})
	return jobs, nil
}

func (s Scanner) auditParseFail(name string) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(reservation.AuditEntry{
		Module:   "intake",
		Event:    "name_parse_fail",
		Filename: name,
	}); err != nil && s.Log != nil {
		s.Log.Warn("audit append failed", "event", "name_parse_fail", "error", err)
	}
}
