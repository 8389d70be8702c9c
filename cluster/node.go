package cluster

import (
	"time"

	"github.com/xraph/vigil/id"
)

// NodeStatus represents the liveness state of a cluster node.
// Transitions are monotonic: Alive → Suspected → Dead, with Suspected
// returning to Alive on a received heartbeat. Dead is terminal.
type NodeStatus string

const (
	// NodeAlive means heartbeats are arriving within the interval.
	NodeAlive NodeStatus = "alive"
	// NodeSuspected means at least one interval was missed, but fewer
	// than the threshold. No error is emitted for this state.
	NodeSuspected NodeStatus = "suspected"
	// NodeDead means the threshold of consecutive missed intervals was
	// reached. The entry is retained for audit but never updated again.
	NodeDead NodeStatus = "dead"
)

// Node is a cluster node's liveness entry.
type Node struct {
	ID       id.NodeID `json:"id"`
	Hostname string    `json:"hostname"`

	// Resources is the node's advertised capacity by resource name
	// (e.g. "CPU", "GPU", custom kinds). Used by the feasibility checker.
	Resources map[string]float64 `json:"resources,omitempty"`

	Status        NodeStatus `json:"status"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`

	// MissedCount is the number of consecutive monitor intervals without
	// a heartbeat. Reset to zero by any received heartbeat.
	MissedCount int `json:"missed_count"`

	RegisteredAt time.Time `json:"registered_at"`
}

// WorkerState represents the lifecycle state of a worker process.
type WorkerState string

const (
	// WorkerStarting means the process is launching but has not yet
	// executed anything.
	WorkerStarting WorkerState = "starting"
	// WorkerActive means the worker is healthy and executing calls.
	WorkerActive WorkerState = "active"
	// WorkerDead means the worker exited and will never execute again.
	WorkerDead WorkerState = "dead"
)

// Worker represents a worker process bound to a node.
type Worker struct {
	ID        id.WorkerID `json:"id"`
	NodeID    id.NodeID   `json:"node_id"`
	PID       int         `json:"pid,omitempty"`
	State     WorkerState `json:"state"`
	LastSeen  time.Time   `json:"last_seen"`
	CreatedAt time.Time   `json:"created_at"`
}
