package redis

// Redis key naming conventions for vigil data.
// All keys are prefixed with "vigil:" to avoid collisions.

const keyPrefix = "vigil:"

// ── Error log keys ──

// errorKey returns the key for an error record entity: vigil:error:{id}
func errorKey(id string) string { return keyPrefix + "error:" + id }

// errorSeqKey is the Sorted Set ordering error record IDs by occurrence
// time (score: OccurredAt in nanoseconds).
const errorSeqKey = keyPrefix + "errors"

// ── Cluster keys ──

// nodeKey returns the key for a node entity: vigil:node:{id}
func nodeKey(id string) string { return keyPrefix + "node:" + id }

// nodeIDsKey is the Set tracking all node IDs for enumeration.
const nodeIDsKey = keyPrefix + "node_ids"

// workerKey returns the key for a worker entity: vigil:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"

// nodeWorkersKey returns the Set key tracking workers bound to a node.
func nodeWorkersKey(nodeID string) string {
	return keyPrefix + "node_workers:" + nodeID
}
