package cluster

import (
	"context"
	"time"

	"github.com/xraph/vigil/id"
)

// Store defines the persistence contract for node and worker liveness.
type Store interface {
	// RegisterNode adds a node's liveness entry. The entry starts Alive
	// with LastHeartbeat set to registration time.
	RegisterNode(ctx context.Context, n *Node) error

	// HeartbeatNode records a heartbeat: LastHeartbeat is updated,
	// MissedCount resets to zero, and a Suspected node returns to Alive.
	// Heartbeats for a Dead node are rejected with vigil.ErrNodeDead —
	// status never moves backward out of Dead.
	HeartbeatNode(ctx context.Context, nodeID id.NodeID, at time.Time) error

	// GetNode retrieves a node's liveness entry.
	GetNode(ctx context.Context, nodeID id.NodeID) (*Node, error)

	// ListNodes returns all node entries, including dead ones (retained
	// for audit).
	ListNodes(ctx context.Context) ([]*Node, error)

	// UpdateNode persists monitor-side changes (missed count, status).
	// Implementations must refuse to move a Dead node to any other
	// status.
	UpdateNode(ctx context.Context, n *Node) error

	// IncrementMissed bumps a node's missed-heartbeat count and moves it
	// to Suspected, but only while LastHeartbeat still equals seen: a
	// heartbeat landing between the monitor's read and this write wins
	// and the count stays reset. Dead nodes are left untouched. Returns
	// the node's state after the attempt.
	IncrementMissed(ctx context.Context, nodeID id.NodeID, seen time.Time) (*Node, error)

	// RegisterWorker adds a worker to the registry.
	RegisterWorker(ctx context.Context, w *Worker) error

	// GetWorker retrieves a worker by id.
	GetWorker(ctx context.Context, workerID id.WorkerID) (*Worker, error)

	// UpdateWorker persists worker state changes.
	UpdateWorker(ctx context.Context, w *Worker) error

	// ListWorkersByNode returns all workers bound to the given node.
	ListWorkersByNode(ctx context.Context, nodeID id.NodeID) ([]*Worker, error)

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]*Worker, error)
}
