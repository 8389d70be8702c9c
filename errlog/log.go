package errlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/id"
)

// Emitter receives a hook call for every appended record.
// ext.Registry satisfies this interface via EmitErrorRecorded.
type Emitter interface {
	EmitErrorRecorded(ctx context.Context, r *Record)
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Log) { lg.logger = l }
}

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) Option {
	return func(lg *Log) { lg.emitter = e }
}

// WithPollInterval sets the re-query interval for WaitForCount.
func WithPollInterval(d time.Duration) Option {
	return func(lg *Log) { lg.pollInterval = d }
}

// Log provides high-level error record operations over a Store: validated
// appends on the write path, and the query/wait read path exposed to the
// submitting process.
type Log struct {
	store        Store
	emitter      Emitter
	logger       *slog.Logger
	pollInterval time.Duration

	// seq orders records appended within the same clock tick.
	seq atomic.Uint64
}

// NewLog creates a Log backed by the given store.
func NewLog(store Store, opts ...Option) *Log {
	lg := &Log{
		store:        store,
		logger:       slog.Default(),
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(lg)
	}

	return lg
}

// Push validates, stamps, and appends a new record, then notifies the
// emitter. It is the sole write path into the error log.
func (lg *Log) Push(ctx context.Context, kind Kind, jobID id.JobID, sourceID, message string) (*Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("errlog: push: invalid kind %q", kind)
	}
	if message == "" {
		return nil, fmt.Errorf("errlog: push: empty message for kind %q", kind)
	}

	r := &Record{
		ID:         id.NewErrorID(),
		Kind:       kind,
		JobID:      jobID,
		SourceID:   sourceID,
		Message:    message,
		OccurredAt: time.Now().UTC(),
		Seq:        lg.seq.Add(1),
	}

	if err := lg.store.AppendError(ctx, r); err != nil {
		return nil, fmt.Errorf("errlog: push: %w", err)
	}

	lg.logger.Debug("error record pushed",
		slog.String("kind", string(kind)),
		slog.String("source_id", sourceID),
		slog.String("message", message),
	)

	if lg.emitter != nil {
		lg.emitter.EmitErrorRecorded(ctx, r)
	}

	return r, nil
}

// List returns records matching the filter, ordered by occurrence.
func (lg *Log) List(ctx context.Context, f Filter) ([]*Record, error) {
	return lg.store.ListErrors(ctx, f)
}

// Count returns the number of records matching the filter.
func (lg *Log) Count(ctx context.Context, f Filter) (int, error) {
	return lg.store.CountErrors(ctx, f)
}

// WaitForCount blocks until at least min records of the given kind are
// observable, re-querying at a bounded interval. It returns
// vigil.ErrWaitTimeout if the count is not reached within timeout, so
// callers can tell a timeout apart from success.
func (lg *Log) WaitForCount(ctx context.Context, kind Kind, min int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		n, err := lg.store.CountErrors(ctx, Filter{Kind: kind})
		if err != nil {
			return fmt.Errorf("errlog: wait for count: %w", err)
		}
		if n >= min {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: kind %q: have %d, want %d",
				vigil.ErrWaitTimeout, kind, n, min)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lg.pollInterval):
		}
	}
}
