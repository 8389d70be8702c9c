package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/actor"
	"github.com/xraph/vigil/capacity"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/ext"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/middleware"
	"github.com/xraph/vigil/observability"
	"github.com/xraph/vigil/result"
	"github.com/xraph/vigil/store"
	"github.com/xraph/vigil/task"
	"github.com/xraph/vigil/wire"
	"github.com/xraph/vigil/worker"
)

// scopeName is the instrumentation scope for runtime-provided OTel
// instruments.
const scopeName = "github.com/xraph/vigil"

// mailboxSize bounds the number of queued-but-undispatched calls per
// actor.
const mailboxSize = 64

// Option configures a Runtime at build time.
type Option func(*Runtime)

// WithConfig sets the runtime configuration.
func WithConfig(cfg vigil.Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithJobID sets the submitting driver's job id. A fresh one is
// generated when unset.
func WithJobID(jobID id.JobID) Option {
	return func(r *Runtime) { r.jobID = jobID }
}

// WithVersion sets the cluster's runtime version, checked against the
// version connecting drivers announce.
func WithVersion(v string) Option {
	return func(r *Runtime) { r.version = v }
}

// WithNodeResources sets the local node's advertised capacity. Defaults
// to one CPU slot per logical CPU.
func WithNodeResources(res map[string]float64) Option {
	return func(r *Runtime) { r.nodeResources = res }
}

// WithExtension registers an extension for lifecycle notifications.
func WithExtension(e ext.Extension) Option {
	return func(r *Runtime) { r.extraExts = append(r.extraExts, e) }
}

// WithMiddleware appends custom middleware to the invocation chain,
// outside the built-in recover backstop.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runtime) { r.extraMW = append(r.extraMW, mws...) }
}

// WithTracerProvider sets a specific OTel TracerProvider for the tracing
// middleware instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runtime) { r.tracerProvider = tp }
}

// WithMeterProvider sets a specific OTel MeterProvider for the metrics
// middleware and the observability extension instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runtime) { r.meterProvider = mp }
}

// Runtime wires the failure-detection subsystems together: the error
// log, the pending-result table, the task and actor registries, the
// heartbeat monitor, the worker supervisor, the capacity checker, and
// the extension registry. It is the external interface of the library
// and the sink for reports arriving over the wire.
//
// The Runtime does not own the store: Stop halts the background loops
// and fires shutdown hooks but leaves the store open for the caller.
type Runtime struct {
	cfg    vigil.Config
	logger *slog.Logger
	jobID  id.JobID

	store      store.Store
	log        *errlog.Log
	results    *result.Table
	tasks      *task.Registry
	actors     *actor.Registry
	tracker    *actor.Tracker
	propagator *task.Propagator
	supervisor *worker.Supervisor
	monitor    *cluster.Monitor
	checker    *capacity.Checker
	registry   *ext.Registry
	sandbox    *worker.Sandbox

	version       string
	nodeResources map[string]float64
	node          *cluster.Node
	localWorker   *cluster.Worker

	// poolStarted counts worker processes started this session, for the
	// worker-pool pressure check.
	poolStarted atomic.Int64

	extraExts      []ext.Extension
	extraMW        []middleware.Middleware
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu        sync.Mutex
	mailboxes map[string]chan func()
	stopCh    chan struct{}
	stopped   atomic.Bool
	wg        sync.WaitGroup
}

// Compile-time check: the runtime is the wire protocol's sink.
var _ wire.Sink = (*Runtime)(nil)

// Build constructs a Runtime over the given store and registers the
// local node and its first worker. Background loops are not started
// until Start.
func Build(st store.Store, opts ...Option) (*Runtime, error) {
	if st == nil {
		return nil, vigil.ErrNoStore
	}

	r := &Runtime{
		cfg:       vigil.DefaultConfig(),
		logger:    slog.Default(),
		store:     st,
		version:   "0.1.0",
		mailboxes: make(map[string]chan func()),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.jobID.IsNil() {
		r.jobID = id.NewJobID()
	}
	if r.nodeResources == nil {
		r.nodeResources = map[string]float64{"CPU": float64(goruntime.NumCPU())}
	}

	r.registry = ext.NewRegistry(r.logger)
	if r.meterProvider != nil {
		r.registry.Register(observability.NewMetricsExtensionWithMeter(r.meterProvider.Meter(scopeName)))
	} else {
		r.registry.Register(observability.NewMetricsExtension())
	}
	for _, e := range r.extraExts {
		r.registry.Register(e)
	}

	r.log = errlog.NewLog(st,
		errlog.WithLogger(r.logger),
		errlog.WithEmitter(r.registry),
		errlog.WithPollInterval(r.cfg.WaitPollInterval),
	)
	r.results = result.NewTable()
	r.tasks = task.NewRegistry()
	r.actors = actor.NewRegistry()

	r.propagator = task.NewPropagator(r.log, r.results, r.jobID,
		task.WithEmitter(r.registry),
		task.WithLogger(r.logger),
		task.WithWarnPayloadSize(r.cfg.WarnPayloadSize),
	)
	r.tracker = actor.NewTracker(r.log, r.results, r.jobID,
		actor.WithEmitter(r.registry),
		actor.WithLogger(r.logger),
	)
	r.supervisor = worker.NewSupervisor(st, r.log, r.results, r.jobID,
		worker.WithEmitter(r.registry),
		worker.WithLogger(r.logger),
	)
	r.monitor = cluster.NewMonitor(st, r.log, r.jobID,
		cluster.WithInterval(r.cfg.HeartbeatInterval),
		cluster.WithMissThreshold(r.cfg.HeartbeatMissThreshold),
		cluster.WithDeathHandler(r.supervisor),
		cluster.WithEmitter(r.registry),
		cluster.WithMonitorLogger(r.logger),
	)
	r.checker = capacity.NewChecker(st, r.log, r.jobID,
		capacity.WithInterval(r.cfg.CapacityCheckInterval),
		capacity.WithPoolFactor(r.cfg.WorkerPoolFactor),
		capacity.WithLogger(r.logger),
	)

	r.sandbox = worker.NewSandbox(r.logger, r.defaultMiddleware()...)

	if err := r.registerLocal(context.Background()); err != nil {
		return nil, err
	}

	return r, nil
}

// defaultMiddleware builds the invocation chain, honoring custom OTel
// providers when set. Recover is the sandbox's own innermost backstop.
func (r *Runtime) defaultMiddleware() []middleware.Middleware {
	tracing := middleware.Tracing()
	if r.tracerProvider != nil {
		tracing = middleware.TracingWithTracer(r.tracerProvider.Tracer(scopeName))
	}

	metrics := middleware.Metrics()
	if r.meterProvider != nil {
		metrics = middleware.MetricsWithMeter(r.meterProvider.Meter(scopeName))
	}

	mws := []middleware.Middleware{
		tracing,
		metrics,
		middleware.Logging(r.logger),
		middleware.Timeout(r.logger),
	}

	return append(mws, r.extraMW...)
}

// registerLocal adds this process's node and first worker to the
// cluster store.
func (r *Runtime) registerLocal(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	now := time.Now().UTC()
	r.node = &cluster.Node{
		ID:            id.NewNodeID(),
		Hostname:      hostname,
		Resources:     r.nodeResources,
		Status:        cluster.NodeAlive,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	if err := r.store.RegisterNode(ctx, r.node); err != nil {
		return fmt.Errorf("vigil/runtime: register local node: %w", err)
	}

	r.localWorker = &cluster.Worker{
		ID:        id.NewWorkerID(),
		NodeID:    r.node.ID,
		PID:       os.Getpid(),
		State:     cluster.WorkerActive,
		LastSeen:  now,
		CreatedAt: now,
	}
	if err := r.store.RegisterWorker(ctx, r.localWorker); err != nil {
		return fmt.Errorf("vigil/runtime: register local worker: %w", err)
	}
	r.poolStarted.Store(1)

	r.logger.Info("runtime registered",
		slog.String("node_id", r.node.ID.String()),
		slog.String("worker_id", r.localWorker.ID.String()),
		slog.String("job_id", r.jobID.String()),
	)

	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the heartbeat monitor and the capacity checker.
func (r *Runtime) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.monitor.Start(gctx) })
	g.Go(func() error { return r.checker.Start(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("vigil/runtime: start: %w", err)
	}

	r.logger.Info("runtime started")

	return nil
}

// Stop halts the background loops, drains the actor mailboxes, and
// fires shutdown hooks. Idempotent.
func (r *Runtime) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if r.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ShutdownTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.monitor.Stop(gctx) })
	g.Go(func() error { return r.checker.Stop(gctx) })

	err := g.Wait()

	close(r.stopCh)
	r.wg.Wait()

	r.registry.EmitShutdown(ctx)
	r.logger.Info("runtime stopped")

	if err != nil {
		return fmt.Errorf("vigil/runtime: stop: %w", err)
	}

	return nil
}

// ──────────────────────────────────────────────────
// Task submission
// ──────────────────────────────────────────────────

// Call is the caller-side handle for one submitted invocation: the call
// id and its declared results in index order.
type Call struct {
	ID      id.CallID
	Results []*result.Result
}

// Get blocks on the call's first declared result.
func (c *Call) Get(ctx context.Context) ([]byte, error) {
	return c.Results[0].Get(ctx)
}

// SubmitOption configures one submission.
type SubmitOption func(*submitParams)

type submitParams struct {
	deps    []*result.Result
	timeout time.Duration
}

// WithDependencies declares upstream results this call consumes. If any
// dependency fails, the call fails with the same message instead of
// executing.
func WithDependencies(deps ...*result.Result) SubmitOption {
	return func(p *submitParams) { p.deps = append(p.deps, deps...) }
}

// WithCallTimeout bounds the invocation's execution.
func WithCallTimeout(d time.Duration) SubmitOption {
	return func(p *submitParams) { p.timeout = d }
}

// RegisterTask adds a task definition to the registry.
func (r *Runtime) RegisterTask(def *task.Definition) error {
	return r.tasks.Register(def)
}

// Submit dispatches one invocation of a registered task on the local
// worker and returns a handle to its declared results.
//
// A definition whose code object failed to materialize records one
// registration-import error for the loading worker and the call's
// results fail without running user code. A demand no node could ever
// satisfy leaves the call queued under the capacity checker instead of
// dispatching; its results stay pending until a suitable node joins.
func (r *Runtime) Submit(ctx context.Context, name string, args [][]byte, opts ...SubmitOption) (*Call, error) {
	def, ok := r.tasks.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", vigil.ErrTaskNotFound, name)
	}

	var p submitParams
	for _, opt := range opts {
		opt(&p)
	}

	callID := id.NewCallID()
	workerID := r.localWorker.ID
	results := r.results.Register(callID, workerID, def.NumReturns)
	call := &Call{ID: callID, Results: results}

	if _, err := r.propagator.CheckPayloadSize(ctx, def.Name, args); err != nil {
		r.logger.Warn("payload size check", slog.String("error", err.Error()))
	}

	if def.ImportErr != nil {
		loadErr := r.propagator.LoadOnWorker(ctx, def, workerID)
		if _, err := r.results.FailCall(callID, &task.ExecutionError{
			Kind:    errlog.KindRegistrationImport,
			CallID:  callID,
			Message: loadErr.Error(),
		}); err != nil {
			return nil, err
		}

		return call, nil
	}

	if len(def.Resources) > 0 {
		feasible, err := r.checker.IsFeasible(ctx, def.Resources)
		if err != nil {
			return nil, fmt.Errorf("vigil/runtime: submit %q: %w", name, err)
		}
		if !feasible {
			r.checker.Track(&capacity.Request{
				ID:     callID.String(),
				Kind:   "task",
				Demand: def.Resources,
			})

			return call, nil
		}
	}

	inv := &task.Invocation{
		CallID:      callID,
		Name:        def.Name,
		WorkerID:    workerID,
		Args:        args,
		NumReturns:  def.NumReturns,
		Timeout:     p.timeout,
		SubmittedAt: time.Now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(context.Background(), inv, def.Handler, p.deps)
	}()

	return call, nil
}

// execute waits on the call's dependencies, runs the handler in the
// sandbox, and reports the outcome through the propagator.
func (r *Runtime) execute(ctx context.Context, inv *task.Invocation, handler task.HandlerFunc, deps []*result.Result) {
	for _, dep := range deps {
		if _, err := dep.Get(ctx); err != nil {
			r.failFromDependency(ctx, inv.CallID, err)
			return
		}
	}

	outcome := r.sandbox.Run(ctx, inv, handler)
	if err := r.propagator.Report(ctx, inv.CallID, "", outcome); err != nil {
		r.logger.Error("report outcome",
			slog.String("call_id", inv.CallID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// failFromDependency propagates an upstream failure into this call. A
// silently terminated dependency fails the call silently too; any other
// failure flows through the propagator, preserving the upstream kind
// and message.
func (r *Runtime) failFromDependency(ctx context.Context, callID id.CallID, depErr error) {
	if errors.Is(depErr, vigil.ErrTerminated) {
		if _, err := r.results.FailCall(callID, vigil.ErrTerminated); err != nil {
			r.logger.Warn("fail call for terminated dependency",
				slog.String("call_id", callID.String()),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	kind := errlog.KindTaskExecution
	var execErr *task.ExecutionError
	if errors.As(depErr, &execErr) {
		kind = execErr.Kind
	}

	if err := r.propagator.Report(ctx, callID, "", task.Failed(kind, depErr.Error())); err != nil {
		r.logger.Error("report dependency failure",
			slog.String("call_id", callID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// NotifyOutcome consumes the outcome of an invocation executed by an
// external worker and releases the call's pending results.
func (r *Runtime) NotifyOutcome(ctx context.Context, callID id.CallID, sourceID string, outcome *task.Outcome) error {
	r.checker.Untrack(callID.String())

	return r.propagator.Report(ctx, callID, sourceID, outcome)
}

// RunOnAllWorkers executes fn once on every live worker. A failing fn
// yields one error record per worker it failed on.
func (r *Runtime) RunOnAllWorkers(ctx context.Context, name string, fn task.HandlerFunc) error {
	workers, err := r.store.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("vigil/runtime: run on all workers: %w", err)
	}

	for _, w := range workers {
		if w.State == cluster.WorkerDead {
			continue
		}

		callID := id.NewCallID()
		r.results.Register(callID, w.ID, 1)
		inv := &task.Invocation{
			CallID:      callID,
			Name:        name,
			WorkerID:    w.ID,
			NumReturns:  1,
			SubmittedAt: time.Now().UTC(),
		}

		outcome := r.sandbox.Run(ctx, inv, fn)
		if repErr := r.propagator.Report(ctx, callID, w.ID.String(), outcome); repErr != nil {
			r.logger.Error("report run-on-all-workers outcome",
				slog.String("worker_id", w.ID.String()),
				slog.String("error", repErr.Error()),
			)
		}
	}

	return nil
}

// ──────────────────────────────────────────────────
// Actors
// ──────────────────────────────────────────────────

// ActorHandle is the caller-side handle for one created actor.
type ActorHandle struct {
	ID    id.ActorID
	Class string

	// Construction is the constructor's call handle; its result resolves
	// when the constructor finishes.
	Construction *Call
}

// RegisterActorClass adds an actor class definition to the registry.
func (r *Runtime) RegisterActorClass(def *actor.Definition) error {
	return r.actors.Register(def)
}

// CreateActor creates an actor of the given class and queues its
// constructor on the actor's mailbox. Calls submitted while the
// constructor is pending queue behind it; construction failure fails
// them all without dispatch.
func (r *Runtime) CreateActor(ctx context.Context, class string, args [][]byte) (*ActorHandle, error) {
	def, ok := r.actors.Get(class)
	if !ok {
		return nil, fmt.Errorf("%w: class %q", vigil.ErrActorNotFound, class)
	}
	if err := def.ValidateConstruction(len(args)); err != nil {
		return nil, err
	}

	actorID := id.NewActorID()
	workerID := r.localWorker.ID
	r.tracker.Create(actorID, class, workerID)

	callID := id.NewCallID()
	results := r.results.Register(callID, workerID, 1)
	handle := &ActorHandle{
		ID:           actorID,
		Class:        class,
		Construction: &Call{ID: callID, Results: results},
	}

	if def.ImportErr != nil {
		msg := fmt.Sprintf("Failed to register the actor class %q on the worker: %s",
			class, def.ImportErr.Error())
		if _, err := r.log.Push(ctx, errlog.KindRegistrationImport, r.jobID, workerID.String(), msg); err != nil {
			r.logger.Error("record actor import failure", slog.String("error", err.Error()))
		}
		r.tracker.MarkImportFailed(actorID)

		outcome := task.Failed(errlog.KindRegistrationImport, msg)
		if _, err := r.results.FailCall(callID, &task.ExecutionError{
			Kind:    errlog.KindRegistrationImport,
			CallID:  callID,
			Message: msg,
		}); err != nil {
			return nil, err
		}
		if err := r.tracker.CompleteConstruction(ctx, actorID, outcome); err != nil {
			return nil, err
		}

		return handle, nil
	}

	ctor := def.Constructor
	if ctor == nil {
		ctor = func(context.Context, [][]byte) ([][]byte, error) {
			return [][]byte{nil}, nil
		}
	}

	inv := &task.Invocation{
		CallID:      callID,
		Name:        class + ".constructor",
		WorkerID:    workerID,
		ActorID:     actorID,
		Args:        args,
		NumReturns:  1,
		SubmittedAt: time.Now().UTC(),
	}

	job := func() {
		bg := context.Background()
		outcome := r.sandbox.Run(bg, inv, ctor)
		if err := r.propagator.Report(bg, callID, actorID.String(), outcome); err != nil {
			r.logger.Error("report constructor outcome",
				slog.String("actor_id", actorID.String()),
				slog.String("error", err.Error()),
			)
		}
		if err := r.tracker.CompleteConstruction(bg, actorID, outcome); err != nil {
			r.logger.Error("complete construction",
				slog.String("actor_id", actorID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := r.enqueue(actorID, job); err != nil {
		return nil, err
	}

	return handle, nil
}

// CallActor queues one method call on the actor's mailbox. Undeclared
// methods and wrong argument counts are local contract violations
// returned synchronously, never dispatched or recorded.
func (r *Runtime) CallActor(ctx context.Context, actorID id.ActorID, method string, args [][]byte) (*Call, error) {
	rec, ok := r.tracker.Get(actorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", vigil.ErrActorNotFound, actorID)
	}

	def, ok := r.actors.Get(rec.Class)
	if !ok {
		return nil, fmt.Errorf("%w: class %q", vigil.ErrActorNotFound, rec.Class)
	}
	if err := def.ValidateCall(method, len(args)); err != nil {
		return nil, err
	}
	spec, _ := def.Method(method)

	callID := id.NewCallID()
	results := r.results.Register(callID, rec.BackingWorker, spec.NumReturns)
	call := &Call{ID: callID, Results: results}

	inv := &task.Invocation{
		CallID:      callID,
		Name:        rec.Class + "." + method,
		WorkerID:    rec.BackingWorker,
		ActorID:     actorID,
		Args:        args,
		NumReturns:  spec.NumReturns,
		SubmittedAt: time.Now().UTC(),
	}

	job := func() {
		bg := context.Background()
		live, err := r.tracker.GateCall(bg, actorID, callID)
		if err != nil {
			r.logger.Error("gate actor call",
				slog.String("actor_id", actorID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if !live {
			return
		}

		outcome := r.sandbox.Run(bg, inv, spec.Handler)
		if repErr := r.propagator.Report(bg, callID, actorID.String(), outcome); repErr != nil {
			r.logger.Error("report actor call outcome",
				slog.String("actor_id", actorID.String()),
				slog.String("error", repErr.Error()),
			)
		}
	}

	if err := r.enqueue(actorID, job); err != nil {
		return nil, err
	}

	return call, nil
}

// TerminateActor intentionally terminates the actor. Queued calls not
// yet started fail silently; no error record is ever emitted for the
// actor again.
func (r *Runtime) TerminateActor(ctx context.Context, actorID id.ActorID) error {
	return r.tracker.Terminate(ctx, actorID)
}

// enqueue places a job on the actor's mailbox, creating its dispatch
// goroutine on first use. Mailbox dispatch is sequential per actor.
func (r *Runtime) enqueue(actorID id.ActorID, job func()) error {
	r.mu.Lock()
	mb, ok := r.mailboxes[actorID.String()]
	if !ok {
		mb = make(chan func(), mailboxSize)
		r.mailboxes[actorID.String()] = mb
		r.wg.Add(1)
		go r.drainMailbox(mb)
	}
	r.mu.Unlock()

	select {
	case mb <- job:
		return nil
	case <-r.stopCh:
		return fmt.Errorf("vigil/runtime: enqueue on actor %s: runtime stopped", actorID)
	}
}

func (r *Runtime) drainMailbox(mb chan func()) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case job := <-mb:
			job()
		}
	}
}

// ──────────────────────────────────────────────────
// Liveness reports (wire.Sink)
// ──────────────────────────────────────────────────

// HandleHeartbeat records a node heartbeat.
func (r *Runtime) HandleHeartbeat(ctx context.Context, nodeID id.NodeID) error {
	return r.store.HeartbeatNode(ctx, nodeID, time.Now().UTC())
}

// HandleWorkerExit consumes a worker-exit notification from process
// supervision.
func (r *Runtime) HandleWorkerExit(ctx context.Context, workerID id.WorkerID, cause string) error {
	return r.supervisor.OnWorkerExit(ctx, workerID, worker.ExitCause(cause))
}

// HandleCrashReport records a worker's internal fault ahead of its
// exit.
func (r *Runtime) HandleCrashReport(ctx context.Context, workerID id.WorkerID, message string) error {
	return r.supervisor.OnWorkerCrash(ctx, workerID, message)
}

// HandleVersion checks a connecting driver's announced version against
// the cluster's. A mismatch is recorded, not refused.
func (r *Runtime) HandleVersion(ctx context.Context, _ id.JobID, version string) error {
	r.propagator.CheckVersion(ctx, r.version, version)

	return nil
}

// ──────────────────────────────────────────────────
// Cluster operations
// ──────────────────────────────────────────────────

// RegisterNode adds a remote node's liveness entry.
func (r *Runtime) RegisterNode(ctx context.Context, n *cluster.Node) error {
	return r.store.RegisterNode(ctx, n)
}

// SpawnWorker registers a new worker process on the local node and
// feeds the session's worker count to the pool-pressure check.
func (r *Runtime) SpawnWorker(ctx context.Context) (*cluster.Worker, error) {
	now := time.Now().UTC()
	w := &cluster.Worker{
		ID:        id.NewWorkerID(),
		NodeID:    r.node.ID,
		State:     cluster.WorkerStarting,
		LastSeen:  now,
		CreatedAt: now,
	}
	if err := r.store.RegisterWorker(ctx, w); err != nil {
		return nil, fmt.Errorf("vigil/runtime: spawn worker: %w", err)
	}

	started := int(r.poolStarted.Add(1))
	r.checker.ObservePoolSize(ctx, started, r.clusterSlots(ctx))

	return w, nil
}

// clusterSlots totals the CPU capacity advertised by live nodes.
func (r *Runtime) clusterSlots(ctx context.Context) int {
	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		r.logger.Error("list nodes for slot count", slog.String("error", err.Error()))
		return 0
	}

	slots := 0
	for _, n := range nodes {
		if n.Status == cluster.NodeDead {
			continue
		}
		slots += int(n.Resources["CPU"])
	}

	return slots
}

// ──────────────────────────────────────────────────
// Error delivery
// ──────────────────────────────────────────────────

// ListErrors returns error records matching the filter, ordered by
// occurrence.
func (r *Runtime) ListErrors(ctx context.Context, f errlog.Filter) ([]*errlog.Record, error) {
	return r.log.List(ctx, f)
}

// CountErrors returns the number of records matching the filter.
func (r *Runtime) CountErrors(ctx context.Context, f errlog.Filter) (int, error) {
	return r.log.Count(ctx, f)
}

// WaitForErrorCount blocks until at least min records of the given kind
// are observable, or the timeout elapses with vigil.ErrWaitTimeout.
func (r *Runtime) WaitForErrorCount(ctx context.Context, kind errlog.Kind, min int, timeout time.Duration) error {
	return r.log.WaitForCount(ctx, kind, min, timeout)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// JobID returns the driver's job id.
func (r *Runtime) JobID() id.JobID { return r.jobID }

// LocalNode returns this process's node entry.
func (r *Runtime) LocalNode() *cluster.Node { return r.node }

// LocalWorker returns this process's first worker entry.
func (r *Runtime) LocalWorker() *cluster.Worker { return r.localWorker }

// Extensions returns the extension registry.
func (r *Runtime) Extensions() *ext.Registry { return r.registry }

// Checker returns the capacity checker, for embedders driving ticks
// directly.
func (r *Runtime) Checker() *capacity.Checker { return r.checker }

// Supervisor returns the worker supervisor.
func (r *Runtime) Supervisor() *worker.Supervisor { return r.supervisor }

// Log returns the error log.
func (r *Runtime) Log() *errlog.Log { return r.log }
