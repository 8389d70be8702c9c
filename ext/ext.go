// Package ext defines the extension system for Vigil.
// Extensions are notified of lifecycle events (error recorded, node dead,
// worker exited, etc.) and can react to them — logging, metrics, tracing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Error pipeline hooks
// ──────────────────────────────────────────────────

// ErrorRecorded is called after an error record is appended to the log.
type ErrorRecorded interface {
	OnErrorRecorded(ctx context.Context, r *errlog.Record) error
}

// TaskFailed is called when a task invocation resolves to failure.
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, callID id.CallID, info *task.FailureInfo) error
}

// ──────────────────────────────────────────────────
// Cluster lifecycle hooks
// ──────────────────────────────────────────────────

// NodeDead is called when the heartbeat monitor declares a node dead.
type NodeDead interface {
	OnNodeDead(ctx context.Context, n *cluster.Node) error
}

// WorkerExited is called when a worker process exits, whatever the cause.
type WorkerExited interface {
	OnWorkerExited(ctx context.Context, workerID id.WorkerID, cause string) error
}

// ──────────────────────────────────────────────────
// Actor lifecycle hooks
// ──────────────────────────────────────────────────

// ActorConstructed is called after an actor's constructor finishes,
// successfully or not.
type ActorConstructed interface {
	OnActorConstructed(ctx context.Context, actorID id.ActorID, ok bool) error
}

// ActorTerminated is called when an actor is intentionally terminated.
type ActorTerminated interface {
	OnActorTerminated(ctx context.Context, actorID id.ActorID) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
