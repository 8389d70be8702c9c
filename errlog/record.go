package errlog

import (
	"time"

	"github.com/xraph/vigil/id"
)

// Kind classifies an error record. The taxonomy is closed: every record
// carries exactly one of the constants below.
type Kind string

const (
	// KindTaskExecution means user code raised during task or actor-method
	// execution.
	KindTaskExecution Kind = "task_execution_error"
	// KindRegistrationImport means a task or actor code object failed to
	// load or deserialize on a worker before user code ran.
	KindRegistrationImport Kind = "registration_import_error"
	// KindWorkerCrashed means a worker reported an internal fault.
	KindWorkerCrashed Kind = "worker_crashed"
	// KindWorkerDied means a worker process terminated abnormally.
	KindWorkerDied Kind = "worker_died"
	// KindNodeRemoved means a node missed too many consecutive heartbeats
	// and was declared dead.
	KindNodeRemoved Kind = "node_removed"
	// KindVersionMismatch means a connecting driver reported a runtime
	// version different from the cluster's.
	KindVersionMismatch Kind = "version_mismatch"
	// KindInfeasibleTask warns that a pending resource demand can never be
	// satisfied by any node in the cluster.
	KindInfeasibleTask Kind = "infeasible_task"
	// KindWorkerPoolLarge warns that the worker pool is growing beyond a
	// sustainable multiple of cluster capacity.
	KindWorkerPoolLarge Kind = "worker_pool_large"
	// KindOversizedPayload warns that a serialized task or actor payload
	// exceeded the configured size threshold.
	KindOversizedPayload Kind = "oversized_payload_warning"
	// KindPutReconstruction means an evicted stored object could not be
	// reconstructed while its originating task was still running.
	KindPutReconstruction Kind = "put_reconstruction_failure"
	// KindMonitorDied means the heartbeat monitor itself failed.
	KindMonitorDied Kind = "monitor_died"
	// KindManagerUnavailable means the node manager connection was lost
	// while a caller was blocked on it.
	KindManagerUnavailable Kind = "manager_unavailable"
)

// Valid reports whether k is a member of the closed taxonomy.
func (k Kind) Valid() bool {
	switch k {
	case KindTaskExecution, KindRegistrationImport, KindWorkerCrashed,
		KindWorkerDied, KindNodeRemoved, KindVersionMismatch,
		KindInfeasibleTask, KindWorkerPoolLarge, KindOversizedPayload,
		KindPutReconstruction, KindMonitorDied, KindManagerUnavailable:
		return true
	}

	return false
}

// Record is a single structured error entry. Records are immutable once
// written: the store only ever appends and reads them.
type Record struct {
	ID id.ErrorID `json:"id"`

	// Kind is the closed-taxonomy classification. Never empty.
	Kind Kind `json:"kind"`

	// JobID identifies the submitting driver the record is visible to.
	JobID id.JobID `json:"job_id"`

	// SourceID identifies the failing task, actor, node, or worker.
	SourceID string `json:"source_id"`

	// Message is the failure text, carrying the original error message
	// verbatim. Never empty.
	Message string `json:"message"`

	// OccurredAt is when the failure was observed.
	OccurredAt time.Time `json:"occurred_at"`

	// Seq is a process-monotonic sequence number used to order records
	// whose OccurredAt timestamps collide.
	Seq uint64 `json:"seq"`
}

// Filter selects records by kind and/or job. Zero-value fields match
// everything.
type Filter struct {
	Kind  Kind
	JobID id.JobID
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r *Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if !f.JobID.IsNil() && r.JobID.String() != f.JobID.String() {
		return false
	}

	return true
}
