package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// DeathHandler is notified when the monitor declares a node dead, so that
// pending results owned by the node's workers can be failed. The worker
// supervisor satisfies this interface.
type DeathHandler interface {
	HandleNodeDeath(ctx context.Context, n *Node)
}

// Emitter emits node lifecycle events.
// ext.Registry satisfies this interface via EmitNodeDead.
type Emitter interface {
	EmitNodeDead(ctx context.Context, n *Node)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the fixed wall-clock evaluation interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithMissThreshold sets the number of consecutive missed intervals after
// which a node is declared dead.
func WithMissThreshold(n int) MonitorOption {
	return func(m *Monitor) { m.threshold = n }
}

// WithDeathHandler sets the handler notified on node death.
func WithDeathHandler(h DeathHandler) MonitorOption {
	return func(m *Monitor) { m.deaths = h }
}

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) MonitorOption {
	return func(m *Monitor) { m.emitter = e }
}

// WithMonitorLogger sets the structured logger.
func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// Monitor is the heartbeat monitor. It evaluates every node's liveness on
// a fixed interval, counting consecutive missed heartbeats, and declares a
// node dead once the threshold is reached: exactly one node-removed error
// record is emitted per dead node, and the death handler fails the node's
// pending results.
type Monitor struct {
	store   Store
	log     *errlog.Log
	deaths  DeathHandler
	emitter Emitter
	jobID   id.JobID
	logger  *slog.Logger

	interval  time.Duration
	threshold int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a heartbeat monitor. The default threshold of 40
// consecutive missed intervals matches the runtime's observed production
// configuration.
func NewMonitor(store Store, log *errlog.Log, jobID id.JobID, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:     store,
		log:       log,
		jobID:     jobID,
		logger:    slog.Default(),
		interval:  100 * time.Millisecond,
		threshold: 40,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start launches the monitor loop. It returns immediately.
func (m *Monitor) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	m.logger.Info("heartbeat monitor starting",
		slog.Duration("interval", m.interval),
		slog.Int("miss_threshold", m.threshold),
	)

	m.wg.Add(1)
	go m.loop()

	return nil
}

// Stop signals the monitor loop to exit and waits for it.
func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if !m.safeTick() {
				return
			}
		}
	}
}

// safeTick runs one evaluation pass, converting a panic in the liveness
// check into a monitor-died error record. Returns false when the loop
// must stop because the monitor itself has failed.
func (m *Monitor) safeTick() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			msg := fmt.Sprintf("The monitor failed with the following error:\n%v", r)
			if _, pushErr := m.log.Push(context.Background(), errlog.KindMonitorDied, m.jobID, "monitor", msg); pushErr != nil {
				m.logger.Error("failed to record monitor death", slog.String("error", pushErr.Error()))
			}
			m.logger.Error("heartbeat monitor died", slog.Any("panic", r))
		}
	}()

	m.tick(context.Background())

	return true
}

func (m *Monitor) tick(ctx context.Context) {
	nodes, err := m.store.ListNodes(ctx)
	if err != nil {
		m.logger.Error("list nodes", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()

	for _, n := range nodes {
		if n.Status == NodeDead {
			continue
		}

		if now.Sub(n.LastHeartbeat) < m.interval {
			// Heartbeat arrived within the interval; the store already
			// reset MissedCount, nothing to do.
			continue
		}

		// Compare-and-set on LastHeartbeat: a heartbeat that landed
		// after ListNodes wins and the count stays reset.
		updated, missErr := m.store.IncrementMissed(ctx, n.ID, n.LastHeartbeat)
		if missErr != nil {
			m.logger.Error("increment missed count",
				slog.String("node_id", n.ID.String()),
				slog.String("error", missErr.Error()),
			)
			continue
		}

		if updated.MissedCount >= m.threshold && updated.Status != NodeDead {
			m.declareDead(ctx, updated)
		}
	}
}

// declareDead marks the node dead, emits the single node-removed record,
// and hands the node to the death handler.
func (m *Monitor) declareDead(ctx context.Context, n *Node) {
	n.Status = NodeDead
	if err := m.store.UpdateNode(ctx, n); err != nil {
		m.logger.Error("update dead node",
			slog.String("node_id", n.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	msg := fmt.Sprintf(
		"The node with node id %s has been marked dead because the monitor has missed too many heartbeats from it.",
		n.ID,
	)
	if _, err := m.log.Push(ctx, errlog.KindNodeRemoved, m.jobID, n.ID.String(), msg); err != nil {
		m.logger.Error("record node removal",
			slog.String("node_id", n.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Warn("node marked dead",
		slog.String("node_id", n.ID.String()),
		slog.Int("missed_count", n.MissedCount),
	)

	if m.emitter != nil {
		m.emitter.EmitNodeDead(ctx, n)
	}
	if m.deaths != nil {
		m.deaths.HandleNodeDeath(ctx, n)
	}
}
