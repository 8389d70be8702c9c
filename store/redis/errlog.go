package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// AppendError persists a new error record. The record hash and its
// position in the ordering set are written atomically.
func (s *Store) AppendError(ctx context.Context, r *errlog.Record) error {
	rID := r.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, errorKey(rID), recordToMap(r))
	pipe.ZAdd(ctx, errorSeqKey, zMember(r))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vigil/redis: append error: %w", err)
	}
	return nil
}

// ListErrors returns records matching the filter, ordered by OccurredAt
// ascending with Seq as tiebreaker.
func (s *Store) ListErrors(ctx context.Context, f errlog.Filter) ([]*errlog.Record, error) {
	ids, err := s.client.ZRange(ctx, errorSeqKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: list errors: %w", err)
	}

	records := make([]*errlog.Record, 0, len(ids))
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, errorKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRecord(vals)
		if convErr != nil {
			continue
		}
		if !f.Matches(r) {
			continue
		}
		records = append(records, r)
	}

	// The sorted set orders by occurrence time only; settle ties by Seq.
	sort.SliceStable(records, func(i, k int) bool {
		if !records[i].OccurredAt.Equal(records[k].OccurredAt) {
			return records[i].OccurredAt.Before(records[k].OccurredAt)
		}
		return records[i].Seq < records[k].Seq
	})

	return records, nil
}

// CountErrors returns the number of records matching the filter.
func (s *Store) CountErrors(ctx context.Context, f errlog.Filter) (int, error) {
	records, err := s.ListErrors(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ── helpers ──

func zMember(r *errlog.Record) goredis.Z {
	return goredis.Z{
		Score:  float64(r.OccurredAt.UnixNano()),
		Member: r.ID.String(),
	}
}

func recordToMap(r *errlog.Record) map[string]interface{} {
	return map[string]interface{}{
		"id":          r.ID.String(),
		"kind":        string(r.Kind),
		"job_id":      r.JobID.String(),
		"source_id":   r.SourceID,
		"message":     r.Message,
		"occurred_at": r.OccurredAt.Format(time.RFC3339Nano),
		"seq":         strconv.FormatUint(r.Seq, 10),
	}
}

func mapToRecord(m map[string]string) (*errlog.Record, error) {
	rID, err := id.ParseErrorID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: parse error id: %w", err)
	}
	jobID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: parse job id: %w", err)
	}

	occurredAt, _ := time.Parse(time.RFC3339Nano, m["occurred_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseUint(m["seq"], 10, 64)                   //nolint:errcheck // best-effort parse from trusted Redis data

	return &errlog.Record{
		ID:         rID,
		Kind:       errlog.Kind(m["kind"]),
		JobID:      jobID,
		SourceID:   m["source_id"],
		Message:    m["message"],
		OccurredAt: occurredAt,
		Seq:        seq,
	}, nil
}
