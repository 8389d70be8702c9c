package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/task"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type errorRecordedEntry struct {
	name string
	hook ErrorRecorded
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type nodeDeadEntry struct {
	name string
	hook NodeDead
}

type workerExitedEntry struct {
	name string
	hook WorkerExited
}

type actorConstructedEntry struct {
	name string
	hook ActorConstructed
}

type actorTerminatedEntry struct {
	name string
	hook ActorTerminated
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Registry's Emit methods satisfy the Emitter interfaces declared by the
// errlog, cluster, task, worker, and actor packages.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	errorRecorded    []errorRecordedEntry
	taskFailed       []taskFailedEntry
	nodeDead         []nodeDeadEntry
	workerExited     []workerExitedEntry
	actorConstructed []actorConstructedEntry
	actorTerminated  []actorTerminatedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ErrorRecorded); ok {
		r.errorRecorded = append(r.errorRecorded, errorRecordedEntry{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.taskFailed = append(r.taskFailed, taskFailedEntry{name, h})
	}
	if h, ok := e.(NodeDead); ok {
		r.nodeDead = append(r.nodeDead, nodeDeadEntry{name, h})
	}
	if h, ok := e.(WorkerExited); ok {
		r.workerExited = append(r.workerExited, workerExitedEntry{name, h})
	}
	if h, ok := e.(ActorConstructed); ok {
		r.actorConstructed = append(r.actorConstructed, actorConstructedEntry{name, h})
	}
	if h, ok := e.(ActorTerminated); ok {
		r.actorTerminated = append(r.actorTerminated, actorTerminatedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Error pipeline emitters
// ──────────────────────────────────────────────────

// EmitErrorRecorded notifies all extensions that implement ErrorRecorded.
func (r *Registry) EmitErrorRecorded(ctx context.Context, rec *errlog.Record) {
	for _, e := range r.errorRecorded {
		if err := e.hook.OnErrorRecorded(ctx, rec); err != nil {
			r.logHookError("OnErrorRecorded", e.name, err)
		}
	}
}

// EmitTaskFailed notifies all extensions that implement TaskFailed.
func (r *Registry) EmitTaskFailed(ctx context.Context, callID id.CallID, info *task.FailureInfo) {
	for _, e := range r.taskFailed {
		if err := e.hook.OnTaskFailed(ctx, callID, info); err != nil {
			r.logHookError("OnTaskFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Cluster emitters
// ──────────────────────────────────────────────────

// EmitNodeDead notifies all extensions that implement NodeDead.
func (r *Registry) EmitNodeDead(ctx context.Context, n *cluster.Node) {
	for _, e := range r.nodeDead {
		if err := e.hook.OnNodeDead(ctx, n); err != nil {
			r.logHookError("OnNodeDead", e.name, err)
		}
	}
}

// EmitWorkerExited notifies all extensions that implement WorkerExited.
func (r *Registry) EmitWorkerExited(ctx context.Context, workerID id.WorkerID, cause string) {
	for _, e := range r.workerExited {
		if err := e.hook.OnWorkerExited(ctx, workerID, cause); err != nil {
			r.logHookError("OnWorkerExited", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Actor emitters
// ──────────────────────────────────────────────────

// EmitActorConstructed notifies all extensions that implement ActorConstructed.
func (r *Registry) EmitActorConstructed(ctx context.Context, actorID id.ActorID, ok bool) {
	for _, e := range r.actorConstructed {
		if err := e.hook.OnActorConstructed(ctx, actorID, ok); err != nil {
			r.logHookError("OnActorConstructed", e.name, err)
		}
	}
}

// EmitActorTerminated notifies all extensions that implement ActorTerminated.
func (r *Registry) EmitActorTerminated(ctx context.Context, actorID id.ActorID) {
	for _, e := range r.actorTerminated {
		if err := e.hook.OnActorTerminated(ctx, actorID); err != nil {
			r.logHookError("OnActorTerminated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
