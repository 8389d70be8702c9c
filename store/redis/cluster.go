package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/id"
)

// ── nodes ──

// RegisterNode adds a node's liveness entry.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	nID := n.ID.String()
	key := nodeKey(nID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vigil/redis: register node exists: %w", err)
	}
	if exists != 0 {
		return fmt.Errorf("%w: %s", vigil.ErrNodeExists, nID)
	}

	cp := *n
	if cp.Status == "" {
		cp.Status = cluster.NodeAlive
	}
	now := time.Now().UTC()
	if cp.LastHeartbeat.IsZero() {
		cp.LastHeartbeat = now
	}
	if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = now
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, nodeToMap(&cp))
	pipe.SAdd(ctx, nodeIDsKey, nID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vigil/redis: register node: %w", err)
	}
	return nil
}

// HeartbeatNode records a heartbeat. Dead nodes reject heartbeats.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID id.NodeID, at time.Time) error {
	key := nodeKey(nodeID.String())

	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vigil/redis: heartbeat node: %w", err)
	}
	if len(vals) == 0 {
		return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	if cluster.NodeStatus(vals["status"]) == cluster.NodeDead {
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, nodeID)
	}

	_, err = s.client.HSet(ctx, key,
		"status", string(cluster.NodeAlive),
		"last_heartbeat", at.Format(time.RFC3339Nano),
		"missed_count", "0",
	).Result()
	if err != nil {
		return fmt.Errorf("vigil/redis: heartbeat hset: %w", err)
	}
	return nil
}

// GetNode retrieves a node's liveness entry.
func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*cluster.Node, error) {
	vals, err := s.client.HGetAll(ctx, nodeKey(nodeID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: get node: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	return mapToNode(vals)
}

// ListNodes returns all node entries, including dead ones.
func (s *Store) ListNodes(ctx context.Context) ([]*cluster.Node, error) {
	ids, err := s.client.SMembers(ctx, nodeIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: list nodes: %w", err)
	}

	nodes := make([]*cluster.Node, 0, len(ids))
	for _, nID := range ids {
		vals, getErr := s.client.HGetAll(ctx, nodeKey(nID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		n, convErr := mapToNode(vals)
		if convErr != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// UpdateNode persists monitor-side changes. A Dead node is never moved
// to any other status.
func (s *Store) UpdateNode(ctx context.Context, n *cluster.Node) error {
	key := nodeKey(n.ID.String())

	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vigil/redis: update node: %w", err)
	}
	if len(vals) == 0 {
		return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, n.ID)
	}
	if cluster.NodeStatus(vals["status"]) == cluster.NodeDead && n.Status != cluster.NodeDead {
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, n.ID)
	}

	if _, err = s.client.HSet(ctx, key, nodeToMap(n)).Result(); err != nil {
		return fmt.Errorf("vigil/redis: update node hset: %w", err)
	}
	return nil
}

// incrementMissedScript bumps missed_count and suspects the node only
// while last_heartbeat still matches the value the monitor observed, so
// a heartbeat racing the evaluation pass keeps its reset.
var incrementMissedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local status = redis.call("HGET", KEYS[1], "status")
if status ~= "dead" and redis.call("HGET", KEYS[1], "last_heartbeat") == ARGV[1] then
  redis.call("HSET", KEYS[1], "status", "suspected")
  return redis.call("HINCRBY", KEYS[1], "missed_count", 1)
end
return tonumber(redis.call("HGET", KEYS[1], "missed_count")) or 0
`)

// IncrementMissed runs the compare-and-set script and returns the node's
// state after the attempt.
func (s *Store) IncrementMissed(ctx context.Context, nodeID id.NodeID, seen time.Time) (*cluster.Node, error) {
	key := nodeKey(nodeID.String())

	res, err := incrementMissedScript.Run(ctx, s.client,
		[]string{key}, seen.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: increment missed: %w", err)
	}
	if res < 0 {
		return nil, fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	return s.GetNode(ctx, nodeID)
}

// ── workers ──

// RegisterWorker adds a worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	wID := w.ID.String()

	cp := *w
	if cp.State == "" {
		cp.State = cluster.WorkerStarting
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, workerKey(wID), workerToMap(&cp))
	pipe.SAdd(ctx, workerIDsKey, wID)
	pipe.SAdd(ctx, nodeWorkersKey(cp.NodeID.String()), wID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vigil/redis: register worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by id.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*cluster.Worker, error) {
	vals, err := s.client.HGetAll(ctx, workerKey(workerID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: get worker: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, workerID)
	}
	return mapToWorker(vals)
}

// UpdateWorker persists worker state changes.
func (s *Store) UpdateWorker(ctx context.Context, w *cluster.Worker) error {
	key := workerKey(w.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vigil/redis: update worker exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, w.ID)
	}

	if _, err = s.client.HSet(ctx, key, workerToMap(w)).Result(); err != nil {
		return fmt.Errorf("vigil/redis: update worker: %w", err)
	}
	return nil
}

// ListWorkersByNode returns all workers bound to the given node.
func (s *Store) ListWorkersByNode(ctx context.Context, nodeID id.NodeID) ([]*cluster.Worker, error) {
	ids, err := s.client.SMembers(ctx, nodeWorkersKey(nodeID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: list node workers: %w", err)
	}
	return s.collectWorkers(ctx, ids)
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: list workers: %w", err)
	}
	return s.collectWorkers(ctx, ids)
}

func (s *Store) collectWorkers(ctx context.Context, ids []string) ([]*cluster.Worker, error) {
	workers := make([]*cluster.Worker, 0, len(ids))
	for _, wID := range ids {
		vals, getErr := s.client.HGetAll(ctx, workerKey(wID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		w, convErr := mapToWorker(vals)
		if convErr != nil {
			continue
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// ── helpers ──

func nodeToMap(n *cluster.Node) map[string]interface{} {
	return map[string]interface{}{
		"id":             n.ID.String(),
		"hostname":       n.Hostname,
		"resources":      marshalResources(n.Resources),
		"status":         string(n.Status),
		"last_heartbeat": n.LastHeartbeat.Format(time.RFC3339Nano),
		"missed_count":   strconv.Itoa(n.MissedCount),
		"registered_at":  n.RegisteredAt.Format(time.RFC3339Nano),
	}
}

func mapToNode(m map[string]string) (*cluster.Node, error) {
	nID, err := id.ParseNodeID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: parse node id: %w", err)
	}

	missed, _ := strconv.Atoi(m["missed_count"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	lastHeartbeat, _ := time.Parse(time.RFC3339Nano, m["last_heartbeat"]) //nolint:errcheck // best-effort parse from trusted Redis data
	registeredAt, _ := time.Parse(time.RFC3339Nano, m["registered_at"])   //nolint:errcheck // best-effort parse from trusted Redis data

	return &cluster.Node{
		ID:            nID,
		Hostname:      m["hostname"],
		Resources:     unmarshalResources(m["resources"]),
		Status:        cluster.NodeStatus(m["status"]),
		LastHeartbeat: lastHeartbeat,
		MissedCount:   missed,
		RegisteredAt:  registeredAt,
	}, nil
}

func workerToMap(w *cluster.Worker) map[string]interface{} {
	return map[string]interface{}{
		"id":         w.ID.String(),
		"node_id":    w.NodeID.String(),
		"pid":        strconv.Itoa(w.PID),
		"state":      string(w.State),
		"last_seen":  w.LastSeen.Format(time.RFC3339Nano),
		"created_at": w.CreatedAt.Format(time.RFC3339Nano),
	}
}

func mapToWorker(m map[string]string) (*cluster.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: parse worker id: %w", err)
	}
	nID, err := id.ParseNodeID(m["node_id"])
	if err != nil {
		return nil, fmt.Errorf("vigil/redis: parse node id: %w", err)
	}

	pid, _ := strconv.Atoi(m["pid"])                              //nolint:errcheck // best-effort parse from trusted Redis data
	lastSeen, _ := time.Parse(time.RFC3339Nano, m["last_seen"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &cluster.Worker{
		ID:        wID,
		NodeID:    nID,
		PID:       pid,
		State:     cluster.WorkerState(m["state"]),
		LastSeen:  lastSeen,
		CreatedAt: createdAt,
	}, nil
}

// marshalResources encodes a resource map as msgpack for hash storage.
func marshalResources(res map[string]float64) string {
	if len(res) == 0 {
		return ""
	}
	b, err := msgpack.Marshal(res)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalResources(s string) map[string]float64 {
	if s == "" {
		return nil
	}
	var res map[string]float64
	if err := msgpack.Unmarshal([]byte(s), &res); err != nil {
		return nil
	}
	return res
}
