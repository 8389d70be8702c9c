// Package ext defines the extension system for Vigil.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnErrorRecorded(ctx context.Context, r *errlog.Record) error {
//	    log.Printf("error %s recorded for job %s", r.Kind, r.JobID)
//	    return nil
//	}
//
// # Error Pipeline Hooks
//
//   - [ErrorRecorded] — an error record was appended to the log
//   - [TaskFailed] — a task invocation resolved to failure
//
// # Cluster Lifecycle Hooks
//
//   - [NodeDead] — the heartbeat monitor declared a node dead
//   - [WorkerExited] — a worker process exited
//
// # Actor Lifecycle Hooks
//
//   - [ActorConstructed] — an actor's constructor finished
//   - [ActorTerminated] — an actor was intentionally terminated
//
// # Other Hooks
//
//   - [Shutdown] — the runtime is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
