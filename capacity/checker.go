// Package capacity periodically evaluates whether pending resource
// demands can ever be satisfied by the cluster, and whether the worker
// pool is growing unboundedly. Both checks emit warnings, never hard
// failures: an infeasible request stays queued, and a large pool keeps
// running.
package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// Demand is a resource requirement by resource name.
type Demand map[string]float64

// Request is a pending task or actor-creation request the checker
// evaluates against the cluster's advertised resources.
type Request struct {
	// ID identifies the pending request (call or actor id string).
	ID string

	// Kind is "task" or "actor", used only in warning text.
	Kind string

	// Demand is the request's resource requirement.
	Demand Demand
}

// Option configures a Checker.
type Option func(*Checker)

// WithInterval sets the evaluation interval.
func WithInterval(d time.Duration) Option {
	return func(c *Checker) { c.interval = d }
}

// WithPoolFactor sets the multiple of cluster slots at which worker-pool
// warnings begin.
func WithPoolFactor(n int) Option {
	return func(c *Checker) { c.poolFactor = n }
}

// WithWarnEvery sets the sustained-infeasibility throttle window: at most
// one infeasible-task record per request per window.
func WithWarnEvery(d time.Duration) Option {
	return func(c *Checker) { c.warnEvery = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// Checker runs the periodic feasibility and load evaluation. Warnings are
// amortized: the check runs on its own interval, not on every submission,
// and repeated infeasibility of the same request is throttled by a
// token-bucket limiter (one record per request per warn window) rather
// than deduplicated outright — sustained infeasibility keeps surfacing.
type Checker struct {
	store  cluster.Store
	log    *errlog.Log
	jobID  id.JobID
	logger *slog.Logger

	interval   time.Duration
	poolFactor int
	warnEvery  time.Duration

	mu       sync.Mutex
	pending  map[string]*Request
	limiters map[string]*rate.Limiter

	// maxWarnedMultiple is the highest slot multiple a worker-pool
	// warning has been emitted for; one warning per threshold crossing.
	maxWarnedMultiple int

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewChecker creates a Checker.
func NewChecker(store cluster.Store, log *errlog.Log, jobID id.JobID, opts ...Option) *Checker {
	c := &Checker{
		store:      store,
		log:        log,
		jobID:      jobID,
		logger:     slog.Default(),
		interval:   250 * time.Millisecond,
		poolFactor: 3,
		warnEvery:  10 * time.Second,
		pending:    make(map[string]*Request),
		limiters:   make(map[string]*rate.Limiter),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Track adds a pending request to the evaluation set.
func (c *Checker) Track(req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[req.ID] = req
}

// Untrack removes a request once it has been scheduled or cancelled.
func (c *Checker) Untrack(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, requestID)
	delete(c.limiters, requestID)
}

// Start launches the periodic evaluation loop.
func (c *Checker) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true

	c.logger.Info("capacity checker starting",
		slog.Duration("interval", c.interval),
		slog.Int("pool_factor", c.poolFactor),
	)

	c.wg.Add(1)
	go c.loop()

	return nil
}

// Stop signals the loop to exit and waits for it.
func (c *Checker) Stop(_ context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	return nil
}

func (c *Checker) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Tick(context.Background())
		}
	}
}

// Tick runs one evaluation pass. Exported so embedders with their own
// scheduling can drive the checker directly.
func (c *Checker) Tick(ctx context.Context) {
	nodes, err := c.store.ListNodes(ctx)
	if err != nil {
		c.logger.Error("list nodes", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	reqs := make([]*Request, 0, len(c.pending))
	for _, req := range c.pending {
		reqs = append(reqs, req)
	}
	c.mu.Unlock()

	for _, req := range reqs {
		if feasible(req.Demand, nodes) {
			continue
		}
		if !c.allowWarning(req.ID) {
			continue
		}

		msg := fmt.Sprintf(
			"The %s request %s is infeasible and cannot currently be scheduled. It requires %v for execution, which no node in this cluster can ever satisfy. The request will stay queued in case a suitable node joins.",
			req.Kind, req.ID, map[string]float64(req.Demand),
		)
		if _, pushErr := c.log.Push(ctx, errlog.KindInfeasibleTask, c.jobID, req.ID, msg); pushErr != nil {
			c.logger.Error("record infeasible request",
				slog.String("request_id", req.ID),
				slog.String("error", pushErr.Error()),
			)
		}
	}
}

// IsFeasible reports whether the demand could ever be satisfied by a
// node in the current cluster, idle or not.
func (c *Checker) IsFeasible(ctx context.Context, d Demand) (bool, error) {
	nodes, err := c.store.ListNodes(ctx)
	if err != nil {
		return false, fmt.Errorf("capacity: list nodes: %w", err)
	}

	return feasible(d, nodes), nil
}

// allowWarning throttles repeated warnings per request: one immediately,
// then at most one per warn window of sustained infeasibility.
func (c *Checker) allowWarning(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[requestID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.warnEvery), 1)
		c.limiters[requestID] = lim
	}

	return lim.Allow()
}

// feasible reports whether any single node, fully idle, could satisfy the
// demand. Busy-but-sufficient capacity is feasible; only a demand no
// cluster configuration could ever meet is not.
func feasible(d Demand, nodes []*cluster.Node) bool {
	if len(d) == 0 {
		return true
	}

	for _, n := range nodes {
		if n.Status == cluster.NodeDead {
			continue
		}
		if nodeSatisfies(n, d) {
			return true
		}
	}

	return false
}

func nodeSatisfies(n *cluster.Node, d Demand) bool {
	for name, qty := range d {
		if qty <= 0 {
			continue
		}
		if n.Resources[name] < qty {
			return false
		}
	}

	return true
}

// ObservePoolSize consumes the current count of concurrently-starting
// worker processes (or queued nested tasks) against the cluster's total
// execution slots. One worker-pool-large warning is emitted per crossing
// of each successive multiple of slots at or beyond poolFactor × slots;
// this is a resource-pressure signal, not an error.
func (c *Checker) ObservePoolSize(ctx context.Context, poolSize, slots int) {
	if slots <= 0 || poolSize < c.poolFactor*slots {
		return
	}

	multiple := poolSize / slots

	c.mu.Lock()
	if multiple <= c.maxWarnedMultiple {
		c.mu.Unlock()
		return
	}
	c.maxWarnedMultiple = multiple
	c.mu.Unlock()

	msg := fmt.Sprintf(
		"The number of workers started this session (%d) is over %dx the number of execution slots in this cluster (%d). This may indicate unbounded actor creation or deeply nested task submission.",
		poolSize, multiple, slots,
	)
	if _, err := c.log.Push(ctx, errlog.KindWorkerPoolLarge, c.jobID, "worker-pool", msg); err != nil {
		c.logger.Error("record worker pool pressure", slog.String("error", err.Error()))
	}
}
