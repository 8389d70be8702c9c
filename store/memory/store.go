// Package memory implements store.Store entirely in process memory.
// Safe for concurrent access. Intended for unit testing, development,
// and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ errlog.Store  = (*Store)(nil)
	_ cluster.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	// records is append-only: entries are never updated or removed.
	records []*errlog.Record

	nodes   map[string]*cluster.Node
	workers map[string]*cluster.Worker
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		nodes:   make(map[string]*cluster.Node),
		workers: make(map[string]*cluster.Worker),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Error Log Store
// ──────────────────────────────────────────────────

// AppendError persists a new error record.
func (m *Store) AppendError(_ context.Context, r *errlog.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

// ListErrors returns records matching the filter, ordered by OccurredAt
// ascending with Seq as tiebreaker.
func (m *Store) ListErrors(_ context.Context, f errlog.Filter) ([]*errlog.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*errlog.Record, 0, len(m.records))
	for _, r := range m.records {
		if !f.Matches(r) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, k int) bool {
		if !result[i].OccurredAt.Equal(result[k].OccurredAt) {
			return result[i].OccurredAt.Before(result[k].OccurredAt)
		}
		return result[i].Seq < result[k].Seq
	})

	return result, nil
}

// CountErrors returns the number of records matching the filter.
func (m *Store) CountErrors(_ context.Context, f errlog.Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.records {
		if f.Matches(r) {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Cluster Store — nodes
// ──────────────────────────────────────────────────

// RegisterNode adds a node's liveness entry.
func (m *Store) RegisterNode(_ context.Context, n *cluster.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := n.ID.String()
	if _, exists := m.nodes[key]; exists {
		return fmt.Errorf("%w: %s", vigil.ErrNodeExists, key)
	}
	cp := *n
	if cp.Status == "" {
		cp.Status = cluster.NodeAlive
	}
	if cp.LastHeartbeat.IsZero() {
		cp.LastHeartbeat = time.Now().UTC()
	}
	if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = time.Now().UTC()
	}
	m.nodes[key] = &cp
	return nil
}

// HeartbeatNode records a heartbeat. Dead nodes reject heartbeats:
// status never moves backward out of Dead.
func (m *Store) HeartbeatNode(_ context.Context, nodeID id.NodeID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nodeID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	if n.Status == cluster.NodeDead {
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, nodeID)
	}

	n.LastHeartbeat = at
	n.MissedCount = 0
	n.Status = cluster.NodeAlive
	return nil
}

// GetNode retrieves a node's liveness entry.
func (m *Store) GetNode(_ context.Context, nodeID id.NodeID) (*cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[nodeID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	cp := *n
	return &cp, nil
}

// ListNodes returns all node entries, including dead ones.
func (m *Store) ListNodes(_ context.Context) ([]*cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		cp := *n
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].RegisteredAt.Before(result[k].RegisteredAt)
	})

	return result, nil
}

// UpdateNode persists monitor-side changes. A Dead node is never moved
// to any other status.
func (m *Store) UpdateNode(_ context.Context, n *cluster.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := n.ID.String()
	cur, ok := m.nodes[key]
	if !ok {
		return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, key)
	}
	if cur.Status == cluster.NodeDead && n.Status != cluster.NodeDead {
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, key)
	}
	cp := *n
	m.nodes[key] = &cp
	return nil
}

// IncrementMissed bumps the missed count only while LastHeartbeat still
// equals seen, so a heartbeat racing the monitor's pass keeps its reset.
func (m *Store) IncrementMissed(_ context.Context, nodeID id.NodeID, seen time.Time) (*cluster.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nodeID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
	}
	if n.Status != cluster.NodeDead && n.LastHeartbeat.Equal(seen) {
		n.MissedCount++
		n.Status = cluster.NodeSuspected
	}
	cp := *n
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Cluster Store — workers
// ──────────────────────────────────────────────────

// RegisterWorker adds a worker to the registry.
func (m *Store) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	if cp.State == "" {
		cp.State = cluster.WorkerStarting
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.workers[w.ID.String()] = &cp
	return nil
}

// GetWorker retrieves a worker by id.
func (m *Store) GetWorker(_ context.Context, workerID id.WorkerID) (*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, workerID)
	}
	cp := *w
	return &cp, nil
}

// UpdateWorker persists worker state changes.
func (m *Store) UpdateWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, ok := m.workers[key]; !ok {
		return fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, key)
	}
	cp := *w
	m.workers[key] = &cp
	return nil
}

// ListWorkersByNode returns all workers bound to the given node.
func (m *Store) ListWorkersByNode(_ context.Context, nodeID id.NodeID) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := nodeID.String()
	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if w.NodeID.String() != want {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}
