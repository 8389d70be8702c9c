// Package worker supervises worker-process liveness and provides the
// sandbox that executes invocations through the middleware chain.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/result"
	"github.com/xraph/vigil/task"
)

// ExitCause classifies why a worker process terminated.
type ExitCause string

const (
	// CauseCrashed means the worker hit an uncaught fatal fault.
	CauseCrashed ExitCause = "crashed"
	// CauseKilled means the process was killed by a signal.
	CauseKilled ExitCause = "killed"
	// CauseIntentional means the owner requested the termination.
	// Intentional exits are never surfaced as operator-visible errors.
	CauseIntentional ExitCause = "intentional"
)

// Emitter emits worker lifecycle events.
// ext.Registry satisfies this interface via EmitWorkerExited.
type Emitter interface {
	EmitWorkerExited(ctx context.Context, workerID id.WorkerID, cause string)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) SupervisorOption {
	return func(s *Supervisor) { s.emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

// Supervisor detects abnormal worker termination and unblocks every
// pending result owned by the dead worker. It is fed worker-exit
// notifications from external process supervision, crash reports from
// workers themselves, and node deaths from the heartbeat monitor.
type Supervisor struct {
	store   cluster.Store
	log     *errlog.Log
	results *result.Table
	emitter Emitter
	jobID   id.JobID
	logger  *slog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(
	store cluster.Store,
	log *errlog.Log,
	results *result.Table,
	jobID id.JobID,
	opts ...SupervisorOption,
) *Supervisor {
	s := &Supervisor{
		store:   store,
		log:     log,
		results: results,
		jobID:   jobID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OnWorkerExit consumes a worker-exit notification.
//
// For a crashed or killed worker it emits exactly one worker-died error
// record — regardless of how many pending calls the worker owned — then
// atomically fails every pending result owned by the worker, and marks
// the worker dead so that results submitted after the death fail
// immediately instead of hanging.
//
// For an intentional exit no record is emitted: in-flight results are
// released as failed with a silent terminated error, so a waiting caller
// is still unblocked but nothing is pushed to the operator-visible log.
//
// Delivery is at-least-once: a duplicate notification for a worker
// already marked dead is dropped without a second record.
func (s *Supervisor) OnWorkerExit(ctx context.Context, workerID id.WorkerID, cause ExitCause) error {
	alreadyDead, err := s.markWorkerDead(ctx, workerID)
	if err != nil {
		s.logger.Warn("mark worker dead",
			slog.String("worker_id", workerID.String()),
			slog.String("error", err.Error()),
		)
	}
	if alreadyDead {
		// At-least-once delivery: the first notification recorded the
		// death and failed the results.
		s.logger.Debug("duplicate worker exit ignored",
			slog.String("worker_id", workerID.String()),
		)

		return nil
	}

	if cause == CauseIntentional {
		failed := s.results.FailAllForWorker(workerID, vigil.ErrTerminated)
		s.logger.Debug("worker terminated by owner",
			slog.String("worker_id", workerID.String()),
			slog.Int("released_results", failed),
		)

		if s.emitter != nil {
			s.emitter.EmitWorkerExited(ctx, workerID, string(cause))
		}

		return nil
	}

	msg := fmt.Sprintf("A worker died or was killed while executing a task on worker %s.", workerID)
	if _, err := s.log.Push(ctx, errlog.KindWorkerDied, s.jobID, workerID.String(), msg); err != nil {
		return fmt.Errorf("worker: record death of %s: %w", workerID, err)
	}

	failed := s.results.FailAllForWorker(workerID, &task.ExecutionError{
		Kind:    errlog.KindWorkerDied,
		Message: msg,
	})

	s.logger.Warn("worker died",
		slog.String("worker_id", workerID.String()),
		slog.String("cause", string(cause)),
		slog.Int("failed_results", failed),
	)

	if s.emitter != nil {
		s.emitter.EmitWorkerExited(ctx, workerID, string(cause))
	}

	return nil
}

// OnWorkerCrash consumes a crash report from a worker that hit an
// internal fault but has not yet exited. One worker-crashed record is
// emitted; the subsequent exit notification produces the worker-died
// record and fails the pending results.
func (s *Supervisor) OnWorkerCrash(ctx context.Context, workerID id.WorkerID, reason string) error {
	msg := fmt.Sprintf("A worker crashed with the following error: %s", reason)
	if _, err := s.log.Push(ctx, errlog.KindWorkerCrashed, s.jobID, workerID.String(), msg); err != nil {
		return fmt.Errorf("worker: record crash of %s: %w", workerID, err)
	}

	s.logger.Warn("worker crashed",
		slog.String("worker_id", workerID.String()),
		slog.String("reason", reason),
	)

	return nil
}

// HandleNodeDeath fails every pending result owned by workers on a node
// the heartbeat monitor declared dead. The node-removed record is the
// monitor's; no per-worker records are emitted here.
func (s *Supervisor) HandleNodeDeath(ctx context.Context, n *cluster.Node) {
	workers, err := s.store.ListWorkersByNode(ctx, n.ID)
	if err != nil {
		s.logger.Error("list workers for dead node",
			slog.String("node_id", n.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	msg := fmt.Sprintf("The node %s running this worker has been marked dead.", n.ID)
	for _, w := range workers {
		if _, markErr := s.markWorkerDead(ctx, w.ID); markErr != nil {
			s.logger.Warn("mark worker dead for dead node",
				slog.String("worker_id", w.ID.String()),
				slog.String("error", markErr.Error()),
			)
		}
		s.results.FailAllForWorker(w.ID, &task.ExecutionError{
			Kind:    errlog.KindNodeRemoved,
			Message: msg,
		})
	}
}

// markWorkerDead marks the worker dead and reports whether it was dead
// before this call, so duplicate exit notifications can be dropped.
func (s *Supervisor) markWorkerDead(ctx context.Context, workerID id.WorkerID) (alreadyDead bool, err error) {
	w, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return false, err
	}
	if w.State == cluster.WorkerDead {
		return true, nil
	}
	w.State = cluster.WorkerDead

	return false, s.store.UpdateWorker(ctx, w)
}
