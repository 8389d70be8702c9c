package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/result"
)

// Emitter emits task lifecycle events.
// ext.Registry satisfies this interface via EmitTaskFailed.
type Emitter interface {
	EmitTaskFailed(ctx context.Context, callID id.CallID, info *FailureInfo)
}

// PropagatorOption configures a Propagator.
type PropagatorOption func(*Propagator)

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) PropagatorOption {
	return func(p *Propagator) { p.emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) PropagatorOption {
	return func(p *Propagator) { p.logger = l }
}

// WithWarnPayloadSize sets the serialized payload size above which an
// oversized-payload warning is recorded. Zero disables the check.
func WithWarnPayloadSize(n int) PropagatorOption {
	return func(p *Propagator) { p.warnSize = n }
}

// Propagator wraps every task and actor-method execution outcome. It is
// the sole consumer of execution-outcome notifications from the worker
// sandbox: success resolves the call's results together, failure appends
// one error record per occurrence and fails the results as a unit so no
// blocked get ever hangs past the terminal failure.
type Propagator struct {
	log      *errlog.Log
	results  *result.Table
	emitter  Emitter
	jobID    id.JobID
	warnSize int
	logger   *slog.Logger
}

// NewPropagator creates a Propagator.
func NewPropagator(log *errlog.Log, results *result.Table, jobID id.JobID, opts ...PropagatorOption) *Propagator {
	p := &Propagator{
		log:     log,
		results: results,
		jobID:   jobID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Report consumes the outcome of one invocation. On success the call's K
// declared results resolve together; a value-count mismatch is itself an
// execution failure (no partial success across declared return values).
// On failure, one error record is appended carrying the original message
// verbatim, and every result of the call fails with that same message.
//
// Report is idempotent with respect to the pending-result race: if the
// worker supervisor or heartbeat monitor already failed the call, the
// result write is a no-op but the error record is still appended for
// audit.
func (p *Propagator) Report(ctx context.Context, callID id.CallID, sourceID string, outcome *Outcome) error {
	if outcome.Ok() {
		if _, err := p.results.ResolveCall(callID, outcome.Values); err != nil {
			// Declared/actual count mismatch: fail the call as a unit.
			info := &FailureInfo{Kind: errlog.KindTaskExecution, Message: err.Error()}
			return p.reportFailure(ctx, callID, sourceID, info)
		}

		return nil
	}

	return p.reportFailure(ctx, callID, sourceID, outcome.Failure)
}

func (p *Propagator) reportFailure(ctx context.Context, callID id.CallID, sourceID string, info *FailureInfo) error {
	if sourceID == "" {
		sourceID = callID.String()
	}

	if _, err := p.log.Push(ctx, info.Kind, p.jobID, sourceID, info.Message); err != nil {
		p.logger.Error("record task failure",
			slog.String("call_id", callID.String()),
			slog.String("error", err.Error()),
		)
	}

	if _, err := p.results.FailCall(callID, &ExecutionError{
		Kind:    info.Kind,
		CallID:  callID,
		Message: info.Message,
	}); err != nil {
		return fmt.Errorf("task: report failure for call %s: %w", callID, err)
	}

	if p.emitter != nil {
		p.emitter.EmitTaskFailed(ctx, callID, info)
	}

	return nil
}

// LoadOnWorker simulates the materialization of a definition on a worker.
// A broken definition records one registration-import error per loading
// worker — N workers attempting the load yield N records, deliberately
// not deduplicated — and reports vigil.ErrTaskNotFound-style failure to
// the caller via the returned error.
func (p *Propagator) LoadOnWorker(ctx context.Context, def *Definition, workerID id.WorkerID) error {
	if def.ImportErr == nil {
		return nil
	}

	msg := fmt.Sprintf("Failed to register the function %q on the worker: %s",
		def.Name, def.ImportErr.Error())
	if _, err := p.log.Push(ctx, errlog.KindRegistrationImport, p.jobID, workerID.String(), msg); err != nil {
		p.logger.Error("record registration import failure",
			slog.String("task", def.Name),
			slog.String("worker_id", workerID.String()),
			slog.String("error", err.Error()),
		)
	}

	return def.ImportErr
}

// CheckPayloadSize serializes payload with msgpack and records one
// oversized-payload warning if it exceeds the configured threshold.
// The payload itself is always accepted; this is a pressure signal,
// not a failure.
func (p *Propagator) CheckPayloadSize(ctx context.Context, sourceID string, payload any) (int, error) {
	if p.warnSize <= 0 {
		return 0, nil
	}

	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("task: serialize payload for %s: %w", sourceID, err)
	}

	if len(raw) > p.warnSize {
		msg := fmt.Sprintf(
			"Warning: the exported definition %s is very large (%d bytes serialized). Consider storing large values explicitly instead of capturing them.",
			sourceID, len(raw),
		)
		if _, pushErr := p.log.Push(ctx, errlog.KindOversizedPayload, p.jobID, sourceID, msg); pushErr != nil {
			p.logger.Error("record oversized payload",
				slog.String("source_id", sourceID),
				slog.String("error", pushErr.Error()),
			)
		}
	}

	return len(raw), nil
}

// CheckVersion compares a connecting driver's reported runtime version
// against the cluster's and records one version-mismatch error if they
// disagree. The connection is not refused; mismatches are reported, not
// enforced.
func (p *Propagator) CheckVersion(ctx context.Context, clusterVersion, reported string) bool {
	if reported == clusterVersion {
		return true
	}

	msg := fmt.Sprintf("Version mismatch: the cluster is running version %q but the connecting process reports version %q.",
		clusterVersion, reported)
	if _, err := p.log.Push(ctx, errlog.KindVersionMismatch, p.jobID, "driver", msg); err != nil {
		p.logger.Error("record version mismatch", slog.String("error", err.Error()))
	}

	return false
}

// ReportReconstructionFailure records that an evicted stored object could
// not be reconstructed. The object store itself is an external
// collaborator; this is its reporting entry point.
func (p *Propagator) ReportReconstructionFailure(ctx context.Context, objectID string) {
	msg := fmt.Sprintf("The object %s could not be reconstructed because its originating task is still running.", objectID)
	if _, err := p.log.Push(ctx, errlog.KindPutReconstruction, p.jobID, objectID, msg); err != nil {
		p.logger.Error("record reconstruction failure",
			slog.String("object_id", objectID),
			slog.String("error", err.Error()),
		)
	}
}
