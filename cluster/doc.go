// Package cluster tracks node and worker liveness.
//
// # Node Entity
//
// Each cluster node registers a [Node] carrying its advertised resources
// and sends periodic heartbeats. The [Monitor] evaluates liveness on a
// fixed wall-clock interval, independent of message traffic: a node that
// misses one interval becomes [NodeSuspected] (no error is emitted for
// transient misses), a heartbeat while suspected resets the count, and a
// node that reaches the configured threshold of consecutive missed
// intervals becomes [NodeDead].
//
// Dead is terminal. Status transitions are monotonic per node — never
// backward once dead — and node ids are never reused; a node that comes
// back after being declared dead registers as a new identifier.
//
// Declaring a node dead emits exactly one node-removed error record naming
// the node, and fails every pending result owned by workers on that node
// through the worker supervisor.
//
// # Worker Entity
//
// Workers are the per-node executor processes. The cluster store keeps
// their registry; abnormal worker exits are handled by package worker.
package cluster
