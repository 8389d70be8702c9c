package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// AppendError persists a new error record. The table is append-only:
// nothing ever updates or deletes a row.
func (s *Store) AppendError(ctx context.Context, r *errlog.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vigil_errors (
			id, kind, job_id, source_id, message, occurred_at, seq
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.String(), string(r.Kind), r.JobID.String(),
		r.SourceID, r.Message, r.OccurredAt, int64(r.Seq),
	)
	if err != nil {
		return fmt.Errorf("vigil/postgres: append error: %w", err)
	}
	return nil
}

// ListErrors returns records matching the filter, ordered by occurred_at
// ascending with seq as tiebreaker.
func (s *Store) ListErrors(ctx context.Context, f errlog.Filter) ([]*errlog.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, job_id, source_id, message, occurred_at, seq
		FROM vigil_errors
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR job_id = $2)
		ORDER BY occurred_at ASC, seq ASC`,
		string(f.Kind), filterJobID(f),
	)
	if err != nil {
		return nil, fmt.Errorf("vigil/postgres: list errors: %w", err)
	}
	defer rows.Close()

	var records []*errlog.Record
	for rows.Next() {
		var (
			r                     errlog.Record
			rawID, rawJobID, kind string
			seq                   int64
		)
		if scanErr := rows.Scan(&rawID, &kind, &rawJobID, &r.SourceID, &r.Message, &r.OccurredAt, &seq); scanErr != nil {
			return nil, fmt.Errorf("vigil/postgres: scan error row: %w", scanErr)
		}
		errID, parseErr := id.ParseErrorID(rawID)
		if parseErr != nil {
			return nil, fmt.Errorf("vigil/postgres: parse error id: %w", parseErr)
		}
		jobID, parseErr := id.ParseJobID(rawJobID)
		if parseErr != nil {
			return nil, fmt.Errorf("vigil/postgres: parse job id: %w", parseErr)
		}
		r.ID = errID
		r.JobID = jobID
		r.Kind = errlog.Kind(kind)
		r.Seq = uint64(seq)
		records = append(records, &r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("vigil/postgres: iterate error rows: %w", err)
	}
	return records, nil
}

// CountErrors returns the number of records matching the filter.
func (s *Store) CountErrors(ctx context.Context, f errlog.Filter) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM vigil_errors
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR job_id = $2)`,
		string(f.Kind), filterJobID(f),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("vigil/postgres: count errors: %w", err)
	}
	return n, nil
}

// filterJobID renders the filter's job id, empty when unset.
func filterJobID(f errlog.Filter) string {
	if f.JobID.IsNil() {
		return ""
	}
	return f.JobID.String()
}
