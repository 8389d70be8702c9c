package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/result"
	"github.com/xraph/vigil/task"
)

// ConstructionState tracks whether an actor's constructor has run.
type ConstructionState string

const (
	// ConstructionPending means the constructor has not finished yet.
	ConstructionPending ConstructionState = "pending"
	// ConstructionSucceeded means the constructor returned normally.
	ConstructionSucceeded ConstructionState = "succeeded"
	// ConstructionFailed means the constructor raised or the class
	// failed to import. Every subsequent method call fails without
	// dispatch.
	ConstructionFailed ConstructionState = "failed"
)

// Record is an actor's lifecycle entry.
type Record struct {
	ID            id.ActorID
	Class         string
	State         ConstructionState
	BackingWorker id.WorkerID

	// FailureMessage holds the constructor's original failure text when
	// State is ConstructionFailed.
	FailureMessage string

	// ImportFailed distinguishes "code failed to import" from
	// "constructor raised" so blocked method calls get the right message.
	ImportFailed bool

	// Terminated marks intentional termination: the record is logically
	// destroyed and no further errors are ever emitted for this actor.
	Terminated bool
}

// Emitter emits actor lifecycle events.
// ext.Registry satisfies this interface via the corresponding methods.
type Emitter interface {
	EmitActorConstructed(ctx context.Context, actorID id.ActorID, ok bool)
	EmitActorTerminated(ctx context.Context, actorID id.ActorID)
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) TrackerOption {
	return func(t *Tracker) { t.emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// Tracker owns actor lifecycle records. Construction failure propagates
// forward in call order: the construction call logically precedes every
// method call on the actor, so once construction is known failed, every
// queued method call — including calls queued before the failure was
// observed — resolves to failed synchronously, without dispatch.
type Tracker struct {
	log     *errlog.Log
	results *result.Table
	emitter Emitter
	jobID   id.JobID
	logger  *slog.Logger

	mu     sync.Mutex
	actors map[string]*Record
}

// NewTracker creates a Tracker.
func NewTracker(log *errlog.Log, results *result.Table, jobID id.JobID, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		log:     log,
		results: results,
		jobID:   jobID,
		logger:  slog.Default(),
		actors:  make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Create registers a new actor record in construction-pending state.
func (t *Tracker) Create(actorID id.ActorID, class string, worker id.WorkerID) *Record {
	rec := &Record{
		ID:            actorID,
		Class:         class,
		State:         ConstructionPending,
		BackingWorker: worker,
	}

	t.mu.Lock()
	t.actors[actorID.String()] = rec
	t.mu.Unlock()

	return rec
}

// Get returns the actor's record.
func (t *Tracker) Get(actorID id.ActorID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.actors[actorID.String()]

	return rec, ok
}

// MarkImportFailed flags the actor's class as failed to import, before
// the constructor attempt is reported. Blocked method calls then carry
// the import-failure message instead of a constructor-failure one.
func (t *Tracker) MarkImportFailed(actorID id.ActorID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.actors[actorID.String()]; ok {
		rec.ImportFailed = true
	}
}

// CompleteConstruction consumes the constructor's outcome. Failure sets
// the terminal failed state with the original message; the constructor's
// own error record is the task propagator's (one per occurrence), so
// none is appended here.
func (t *Tracker) CompleteConstruction(ctx context.Context, actorID id.ActorID, outcome *task.Outcome) error {
	t.mu.Lock()
	rec, ok := t.actors[actorID.String()]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", vigil.ErrActorNotFound, actorID)
	}

	if outcome.Ok() {
		rec.State = ConstructionSucceeded
	} else {
		rec.State = ConstructionFailed
		rec.FailureMessage = outcome.Failure.Message
		rec.ImportFailed = rec.ImportFailed || outcome.Failure.Kind == errlog.KindRegistrationImport
	}
	ok = outcome.Ok()
	t.mu.Unlock()

	if t.emitter != nil {
		t.emitter.EmitActorConstructed(ctx, actorID, ok)
	}

	return nil
}

// GateCall decides whether a queued method call may dispatch. It returns
// true when the actor is live. Otherwise it resolves the call's results
// immediately:
//
//   - terminated actor: results fail silently with vigil.ErrTerminated,
//     no record — after intentional termination no error is ever emitted
//     for the actor;
//   - failed construction: one task-execution record per blocked call,
//     with a message identifying whether the class failed to import or
//     the constructor failed (embedding its original message), and the
//     call's results fail with the same message.
func (t *Tracker) GateCall(ctx context.Context, actorID id.ActorID, callID id.CallID) (bool, error) {
	t.mu.Lock()
	rec, ok := t.actors[actorID.String()]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %s", vigil.ErrActorNotFound, actorID)
	}
	terminated := rec.Terminated
	failed := rec.State == ConstructionFailed
	importFailed := rec.ImportFailed
	failureMsg := rec.FailureMessage
	class := rec.Class
	t.mu.Unlock()

	if terminated {
		if _, err := t.results.FailCall(callID, vigil.ErrTerminated); err != nil {
			return false, err
		}

		return false, nil
	}

	if !failed {
		return true, nil
	}

	var msg string
	if importFailed {
		msg = fmt.Sprintf(
			"The actor with id %s of class %s failed to be imported, and so cannot execute this method.",
			actorID, class,
		)
	} else {
		msg = fmt.Sprintf(
			"The actor with id %s could not be constructed because its constructor failed: %s",
			actorID, failureMsg,
		)
	}

	if _, err := t.log.Push(ctx, errlog.KindTaskExecution, t.jobID, actorID.String(), msg); err != nil {
		t.logger.Error("record blocked actor call",
			slog.String("actor_id", actorID.String()),
			slog.String("error", err.Error()),
		)
	}

	if _, err := t.results.FailCall(callID, &task.ExecutionError{
		Kind:    errlog.KindTaskExecution,
		CallID:  callID,
		Message: msg,
	}); err != nil {
		return false, err
	}

	return false, nil
}

// Terminate marks the actor intentionally terminated. The record is
// logically destroyed: queued calls gated after this fail silently and
// no error record is ever emitted for the actor again, even if its
// backing worker later exits.
func (t *Tracker) Terminate(ctx context.Context, actorID id.ActorID) error {
	t.mu.Lock()
	rec, ok := t.actors[actorID.String()]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", vigil.ErrActorNotFound, actorID)
	}
	if rec.Terminated {
		t.mu.Unlock()
		return nil
	}
	rec.Terminated = true
	t.mu.Unlock()

	t.logger.Debug("actor terminated", slog.String("actor_id", actorID.String()))

	if t.emitter != nil {
		t.emitter.EmitActorTerminated(ctx, actorID)
	}

	return nil
}
