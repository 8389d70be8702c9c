package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/id"
)

// ── nodes ──

// RegisterNode adds a node's liveness entry.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	status := n.Status
	if status == "" {
		status = cluster.NodeAlive
	}
	now := time.Now().UTC()
	lastHeartbeat := n.LastHeartbeat
	if lastHeartbeat.IsZero() {
		lastHeartbeat = now
	}
	registeredAt := n.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vigil_nodes (
			id, hostname, resources, status,
			last_heartbeat, missed_count, registered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID.String(), n.Hostname, n.Resources, string(status),
		lastHeartbeat, n.MissedCount, registeredAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", vigil.ErrNodeExists, n.ID)
		}
		return fmt.Errorf("vigil/postgres: register node: %w", err)
	}
	return nil
}

// HeartbeatNode records a heartbeat. The WHERE clause skips dead nodes
// so status never moves backward out of Dead.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID id.NodeID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vigil_nodes
		SET status = 'alive', last_heartbeat = $2, missed_count = 0
		WHERE id = $1 AND status != 'dead'`,
		nodeID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("vigil/postgres: heartbeat node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from dead.
		var status string
		qErr := s.pool.QueryRow(ctx,
			`SELECT status FROM vigil_nodes WHERE id = $1`,
			nodeID.String(),
		).Scan(&status)
		if qErr != nil {
			if isNoRows(qErr) {
				return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
			}
			return fmt.Errorf("vigil/postgres: heartbeat status check: %w", qErr)
		}
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, nodeID)
	}
	return nil
}

// GetNode retrieves a node's liveness entry.
func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*cluster.Node, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, hostname, resources, status,
			last_heartbeat, missed_count, registered_at
		FROM vigil_nodes
		WHERE id = $1`,
		nodeID.String(),
	)
	n, err := scanNode(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, nodeID)
		}
		return nil, fmt.Errorf("vigil/postgres: get node: %w", err)
	}
	return n, nil
}

// ListNodes returns all node entries, including dead ones.
func (s *Store) ListNodes(ctx context.Context) ([]*cluster.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hostname, resources, status,
			last_heartbeat, missed_count, registered_at
		FROM vigil_nodes
		ORDER BY registered_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("vigil/postgres: list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*cluster.Node
	for rows.Next() {
		n, scanErr := scanNode(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("vigil/postgres: scan node row: %w", scanErr)
		}
		nodes = append(nodes, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("vigil/postgres: iterate node rows: %w", err)
	}
	return nodes, nil
}

// UpdateNode persists monitor-side changes. The WHERE clause refuses to
// move a dead node anywhere else.
func (s *Store) UpdateNode(ctx context.Context, n *cluster.Node) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vigil_nodes
		SET hostname = $2, resources = $3, status = $4,
			last_heartbeat = $5, missed_count = $6
		WHERE id = $1 AND (status != 'dead' OR $4 = 'dead')`,
		n.ID.String(), n.Hostname, n.Resources, string(n.Status),
		n.LastHeartbeat, n.MissedCount,
	)
	if err != nil {
		return fmt.Errorf("vigil/postgres: update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		qErr := s.pool.QueryRow(ctx,
			`SELECT status FROM vigil_nodes WHERE id = $1`,
			n.ID.String(),
		).Scan(&status)
		if qErr != nil {
			if isNoRows(qErr) {
				return fmt.Errorf("%w: %s", vigil.ErrNodeNotFound, n.ID)
			}
			return fmt.Errorf("vigil/postgres: update status check: %w", qErr)
		}
		return fmt.Errorf("%w: %s", vigil.ErrNodeDead, n.ID)
	}
	return nil
}

// IncrementMissed bumps the missed count only while last_heartbeat still
// matches the value the monitor observed, so a heartbeat racing the
// evaluation pass keeps its reset.
func (s *Store) IncrementMissed(ctx context.Context, nodeID id.NodeID, seen time.Time) (*cluster.Node, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE vigil_nodes
		SET missed_count = missed_count + 1, status = 'suspected'
		WHERE id = $1 AND status != 'dead' AND last_heartbeat = $2`,
		nodeID.String(), seen,
	)
	if err != nil {
		return nil, fmt.Errorf("vigil/postgres: increment missed: %w", err)
	}
	return s.GetNode(ctx, nodeID)
}

// ── workers ──

// RegisterWorker adds a worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	state := w.State
	if state == "" {
		state = cluster.WorkerStarting
	}
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vigil_workers (
			id, node_id, pid, state, last_seen, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			pid = EXCLUDED.pid,
			state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen`,
		w.ID.String(), w.NodeID.String(), w.PID,
		string(state), w.LastSeen, createdAt,
	)
	if err != nil {
		return fmt.Errorf("vigil/postgres: register worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by id.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*cluster.Worker, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, node_id, pid, state, last_seen, created_at
		FROM vigil_workers
		WHERE id = $1`,
		workerID.String(),
	)
	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, workerID)
		}
		return nil, fmt.Errorf("vigil/postgres: get worker: %w", err)
	}
	return w, nil
}

// UpdateWorker persists worker state changes.
func (s *Store) UpdateWorker(ctx context.Context, w *cluster.Worker) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vigil_workers
		SET node_id = $2, pid = $3, state = $4, last_seen = $5
		WHERE id = $1`,
		w.ID.String(), w.NodeID.String(), w.PID,
		string(w.State), w.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("vigil/postgres: update worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", vigil.ErrWorkerNotFound, w.ID)
	}
	return nil
}

// ListWorkersByNode returns all workers bound to the given node.
func (s *Store) ListWorkersByNode(ctx context.Context, nodeID id.NodeID) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, node_id, pid, state, last_seen, created_at
		FROM vigil_workers
		WHERE node_id = $1
		ORDER BY created_at ASC`,
		nodeID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("vigil/postgres: list node workers: %w", err)
	}
	defer rows.Close()
	return collectWorkers(rows)
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, node_id, pid, state, last_seen, created_at
		FROM vigil_workers
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("vigil/postgres: list workers: %w", err)
	}
	defer rows.Close()
	return collectWorkers(rows)
}

// ── scan helpers ──

func collectWorkers(rows pgx.Rows) ([]*cluster.Worker, error) {
	var workers []*cluster.Worker
	for rows.Next() {
		w, scanErr := scanWorker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("vigil/postgres: scan worker row: %w", scanErr)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vigil/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}

func scanNode(row pgx.Row) (*cluster.Node, error) {
	var (
		n             cluster.Node
		rawID, status string
	)
	if err := row.Scan(&rawID, &n.Hostname, &n.Resources, &status,
		&n.LastHeartbeat, &n.MissedCount, &n.RegisteredAt); err != nil {
		return nil, err
	}
	nID, err := id.ParseNodeID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse node id: %w", err)
	}
	n.ID = nID
	n.Status = cluster.NodeStatus(status)
	return &n, nil
}

func scanWorker(row pgx.Row) (*cluster.Worker, error) {
	var (
		w                    cluster.Worker
		rawID, rawNID, state string
	)
	if err := row.Scan(&rawID, &rawNID, &w.PID, &state,
		&w.LastSeen, &w.CreatedAt); err != nil {
		return nil, err
	}
	wID, err := id.ParseWorkerID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse worker id: %w", err)
	}
	nID, err := id.ParseNodeID(rawNID)
	if err != nil {
		return nil, fmt.Errorf("parse node id: %w", err)
	}
	w.ID = wID
	w.NodeID = nID
	w.State = cluster.WorkerState(state)
	return &w, nil
}
