package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/actor"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/runtime"
	"github.com/xraph/vigil/store/memory"
	"github.com/xraph/vigil/task"
)

func newTestRuntime(t *testing.T, opts ...runtime.Option) *runtime.Runtime {
	t.Helper()

	rt, err := runtime.Build(memory.New(), opts...)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	return rt
}

func testCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func countKind(t *testing.T, rt *runtime.Runtime, kind errlog.Kind) int {
	t.Helper()

	n, err := rt.CountErrors(context.Background(), errlog.Filter{Kind: kind})
	if err != nil {
		t.Fatalf("count errors: %v", err)
	}

	return n
}

func echoTask(name string) *task.Definition {
	return task.NewDefinition(name, func(_ context.Context, args [][]byte) ([][]byte, error) {
		if len(args) == 0 {
			return [][]byte{nil}, nil
		}
		return [][]byte{args[0]}, nil
	})
}

func failingTask(name, msg string) *task.Definition {
	return task.NewDefinition(name, func(context.Context, [][]byte) ([][]byte, error) {
		return nil, errors.New(msg)
	})
}

func blockingTask(name string, release <-chan struct{}) *task.Definition {
	return task.NewDefinition(name, func(context.Context, [][]byte) ([][]byte, error) {
		<-release
		return [][]byte{nil}, nil
	})
}

// ──────────────────────────────────────────────────
// Task submission
// ──────────────────────────────────────────────────

func TestSubmitResolvesResult(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterTask(echoTask("echo")); err != nil {
		t.Fatalf("register: %v", err)
	}

	call, err := rt.Submit(testCtx(t), "echo", [][]byte{[]byte("hello")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	value, err := call.Get(testCtx(t))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "hello" {
		t.Errorf("expected hello, got %q", value)
	}
	if n := countKind(t, rt, errlog.KindTaskExecution); n != 0 {
		t.Errorf("expected no records for success, got %d", n)
	}
}

func TestSubmitUnknownTask(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.Submit(testCtx(t), "nope", nil); !errors.Is(err, vigil.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSubmitFailureFailsAllDeclaredResults(t *testing.T) {
	rt := newTestRuntime(t)
	def := task.NewDefinition("boom",
		func(context.Context, [][]byte) ([][]byte, error) {
			return nil, errors.New("user code exploded")
		},
		task.WithNumReturns(3),
	)
	if err := rt.RegisterTask(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	call, err := rt.Submit(testCtx(t), "boom", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(call.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(call.Results))
	}

	for i, res := range call.Results {
		_, getErr := res.Get(testCtx(t))
		if getErr == nil {
			t.Fatalf("result %d: expected failure", i)
		}
		if !strings.Contains(getErr.Error(), "user code exploded") {
			t.Errorf("result %d: expected original message, got %v", i, getErr)
		}
	}

	// One record per occurrence, not per declared result.
	if n := countKind(t, rt, errlog.KindTaskExecution); n != 1 {
		t.Errorf("expected exactly 1 record, got %d", n)
	}
}

func TestConcurrentFailuresOneRecordEach(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterTask(failingTask("boom", "always fails")); err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			call, err := rt.Submit(context.Background(), "boom", nil)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			_, _ = call.Get(context.Background())
		}()
	}
	wg.Wait()

	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, n, 3*time.Second); err != nil {
		t.Fatalf("wait for count: %v", err)
	}
	if got := countKind(t, rt, errlog.KindTaskExecution); got != n {
		t.Errorf("expected exactly %d records, got %d", n, got)
	}
}

func TestImportErrorSubmission(t *testing.T) {
	rt := newTestRuntime(t)
	def := task.NewDefinition("broken", nil,
		task.WithImportError(errors.New("module not found")),
	)
	if err := rt.RegisterTask(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	call, err := rt.Submit(testCtx(t), "broken", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, getErr := call.Get(testCtx(t))
	if getErr == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(getErr.Error(), "module not found") {
		t.Errorf("expected original import error text, got %v", getErr)
	}

	if n := countKind(t, rt, errlog.KindRegistrationImport); n != 1 {
		t.Errorf("expected 1 registration-import record, got %d", n)
	}
	if n := countKind(t, rt, errlog.KindTaskExecution); n != 0 {
		t.Errorf("import failure must not record a task-execution error, got %d", n)
	}
}

func TestDependencyFailurePropagates(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterTask(failingTask("producer", "producer down")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rt.RegisterTask(echoTask("consumer")); err != nil {
		t.Fatalf("register: %v", err)
	}

	producer, err := rt.Submit(testCtx(t), "producer", nil)
	if err != nil {
		t.Fatalf("submit producer: %v", err)
	}

	consumer, err := rt.Submit(testCtx(t), "consumer", nil,
		runtime.WithDependencies(producer.Results...))
	if err != nil {
		t.Fatalf("submit consumer: %v", err)
	}

	_, getErr := consumer.Get(testCtx(t))
	if getErr == nil {
		t.Fatal("expected consumer to fail")
	}
	if !strings.Contains(getErr.Error(), "producer down") {
		t.Errorf("expected upstream message, got %v", getErr)
	}

	// Producer and consumer each record their own failure.
	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, 2, 2*time.Second); err != nil {
		t.Fatalf("wait for count: %v", err)
	}
}

func TestRunOnAllWorkersRecordsPerWorker(t *testing.T) {
	rt := newTestRuntime(t)
	for range 2 {
		if _, err := rt.SpawnWorker(testCtx(t)); err != nil {
			t.Fatalf("spawn worker: %v", err)
		}
	}

	err := rt.RunOnAllWorkers(testCtx(t), "setup_env",
		func(context.Context, [][]byte) ([][]byte, error) {
			return nil, errors.New("setup failed")
		})
	if err != nil {
		t.Fatalf("run on all workers: %v", err)
	}

	// Local worker plus two spawned: one record each, not deduplicated.
	if n := countKind(t, rt, errlog.KindTaskExecution); n != 3 {
		t.Errorf("expected 3 records, got %d", n)
	}
}

// ──────────────────────────────────────────────────
// Actors
// ──────────────────────────────────────────────────

func counterActor(ctorErr error) *actor.Definition {
	return &actor.Definition{
		Name: "Counter",
		Constructor: func(context.Context, [][]byte) ([][]byte, error) {
			if ctorErr != nil {
				return nil, ctorErr
			}
			return [][]byte{nil}, nil
		},
		Methods: map[string]actor.MethodSpec{
			"inc": {
				Name: "inc",
				Handler: func(context.Context, [][]byte) ([][]byte, error) {
					return [][]byte{[]byte("1")}, nil
				},
				NumReturns: 1,
			},
			"explode": {
				Name: "explode",
				Handler: func(context.Context, [][]byte) ([][]byte, error) {
					return nil, errors.New("method exploded")
				},
				NumReturns: 1,
			},
		},
	}
}

func TestActorMethodCall(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterActorClass(counterActor(nil)); err != nil {
		t.Fatalf("register class: %v", err)
	}

	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}
	if _, err := handle.Construction.Get(testCtx(t)); err != nil {
		t.Fatalf("construction: %v", err)
	}

	call, err := rt.CallActor(testCtx(t), handle.ID, "inc", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	value, err := call.Get(testCtx(t))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "1" {
		t.Errorf("expected 1, got %q", value)
	}
}

func TestActorMethodFailureRecords(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterActorClass(counterActor(nil)); err != nil {
		t.Fatalf("register class: %v", err)
	}

	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}

	call, err := rt.CallActor(testCtx(t), handle.ID, "explode", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, getErr := call.Get(testCtx(t)); getErr == nil ||
		!strings.Contains(getErr.Error(), "method exploded") {
		t.Errorf("expected original method failure, got %v", getErr)
	}

	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, 1, 2*time.Second); err != nil {
		t.Fatalf("wait for count: %v", err)
	}
}

func TestActorConstructorFailurePropagation(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterActorClass(counterActor(errors.New("ctor boom"))); err != nil {
		t.Fatalf("register class: %v", err)
	}

	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}

	if _, ctorErr := handle.Construction.Get(testCtx(t)); ctorErr == nil ||
		!strings.Contains(ctorErr.Error(), "ctor boom") {
		t.Fatalf("expected constructor failure, got %v", ctorErr)
	}

	// A method call queued after the failure resolves failed without
	// dispatch, embedding the constructor's message.
	call, err := rt.CallActor(testCtx(t), handle.ID, "inc", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	_, getErr := call.Get(testCtx(t))
	if getErr == nil {
		t.Fatal("expected blocked call to fail")
	}
	if !strings.Contains(getErr.Error(), "could not be constructed because its constructor failed: ctor boom") {
		t.Errorf("expected constructor-failure message, got %v", getErr)
	}

	// One record for the constructor, one per blocked call.
	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, 2, 2*time.Second); err != nil {
		t.Fatalf("wait for count: %v", err)
	}
}

func TestActorImportFailure(t *testing.T) {
	rt := newTestRuntime(t)
	def := counterActor(nil)
	def.ImportErr = errors.New("class body failed to import")
	if err := rt.RegisterActorClass(def); err != nil {
		t.Fatalf("register class: %v", err)
	}

	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}

	call, err := rt.CallActor(testCtx(t), handle.ID, "inc", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	_, getErr := call.Get(testCtx(t))
	if getErr == nil || !strings.Contains(getErr.Error(), "failed to be imported, and so cannot execute this method") {
		t.Errorf("expected import-failure message, got %v", getErr)
	}

	if n := countKind(t, rt, errlog.KindRegistrationImport); n != 1 {
		t.Errorf("expected 1 registration-import record, got %d", n)
	}
}

func TestActorTerminationIsSilent(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterActorClass(counterActor(nil)); err != nil {
		t.Fatalf("register class: %v", err)
	}

	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}
	if _, err := handle.Construction.Get(testCtx(t)); err != nil {
		t.Fatalf("construction: %v", err)
	}

	if err := rt.TerminateActor(testCtx(t), handle.ID); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	call, err := rt.CallActor(testCtx(t), handle.ID, "inc", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, getErr := call.Get(testCtx(t)); !errors.Is(getErr, vigil.ErrTerminated) {
		t.Errorf("expected ErrTerminated, got %v", getErr)
	}

	// Intentional termination never enters the error pipeline.
	total, err := rt.CountErrors(testCtx(t), errlog.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("expected zero records after intentional termination, got %d", total)
	}
}

func TestUndeclaredMethodIsLocal(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterActorClass(counterActor(nil)); err != nil {
		t.Fatalf("register class: %v", err)
	}
	handle, err := rt.CreateActor(testCtx(t), "Counter", nil)
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}

	var invalid *actor.InvalidInvocationError
	if _, err := rt.CallActor(testCtx(t), handle.ID, "nope", nil); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInvocationError, got %v", err)
	}

	total, err := rt.CountErrors(testCtx(t), errlog.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("contract violations must not be recorded, got %d records", total)
	}
}

// ──────────────────────────────────────────────────
// Worker liveness
// ──────────────────────────────────────────────────

func TestWorkerDeathFailsPendingAndLateSubmissions(t *testing.T) {
	rt := newTestRuntime(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	if err := rt.RegisterTask(blockingTask("block", release)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rt.RegisterTask(echoTask("echo")); err != nil {
		t.Fatalf("register: %v", err)
	}

	pending, err := rt.Submit(testCtx(t), "block", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	workerID := rt.LocalWorker().ID
	if err := rt.HandleWorkerExit(testCtx(t), workerID, "killed"); err != nil {
		t.Fatalf("worker exit: %v", err)
	}

	_, getErr := pending.Get(testCtx(t))
	if getErr == nil || !strings.Contains(getErr.Error(), "died or was killed while executing a task") {
		t.Errorf("expected worker-died failure, got %v", getErr)
	}

	// Submissions after the death fail immediately instead of hanging.
	late, err := rt.Submit(testCtx(t), "echo", nil)
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if _, lateErr := late.Get(testCtx(t)); lateErr == nil ||
		!strings.Contains(lateErr.Error(), "died or was killed") {
		t.Errorf("expected late submission to fail with worker death, got %v", lateErr)
	}

	// One record regardless of how many results the worker owned.
	if n := countKind(t, rt, errlog.KindWorkerDied); n != 1 {
		t.Errorf("expected exactly 1 worker-died record, got %d", n)
	}
}

func TestIntentionalWorkerExitIsSilent(t *testing.T) {
	rt := newTestRuntime(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	if err := rt.RegisterTask(blockingTask("block", release)); err != nil {
		t.Fatalf("register: %v", err)
	}

	pending, err := rt.Submit(testCtx(t), "block", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := rt.HandleWorkerExit(testCtx(t), rt.LocalWorker().ID, "intentional"); err != nil {
		t.Fatalf("worker exit: %v", err)
	}

	if _, getErr := pending.Get(testCtx(t)); !errors.Is(getErr, vigil.ErrTerminated) {
		t.Errorf("expected silent terminated failure, got %v", getErr)
	}

	total, err := rt.CountErrors(testCtx(t), errlog.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("expected zero records for intentional exit, got %d", total)
	}
}

func TestCrashThenDiePair(t *testing.T) {
	rt := newTestRuntime(t)
	workerID := rt.LocalWorker().ID

	if err := rt.HandleCrashReport(testCtx(t), workerID, "segfault in user code"); err != nil {
		t.Fatalf("crash report: %v", err)
	}
	if err := rt.HandleWorkerExit(testCtx(t), workerID, "crashed"); err != nil {
		t.Fatalf("worker exit: %v", err)
	}

	if n := countKind(t, rt, errlog.KindWorkerCrashed); n != 1 {
		t.Errorf("expected 1 worker-crashed record, got %d", n)
	}
	if n := countKind(t, rt, errlog.KindWorkerDied); n != 1 {
		t.Errorf("expected 1 worker-died record, got %d", n)
	}

	records, err := rt.ListErrors(testCtx(t), errlog.Filter{Kind: errlog.KindWorkerCrashed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || !strings.Contains(records[0].Message, "segfault in user code") {
		t.Errorf("expected crash message verbatim, got %v", records)
	}
}

// ──────────────────────────────────────────────────
// Node liveness
// ──────────────────────────────────────────────────

func TestNodeDeathRecordedExactlyOncePerNode(t *testing.T) {
	cfg := vigil.DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatMissThreshold = 3
	rt := newTestRuntime(t, runtime.WithConfig(cfg))

	extra := &cluster.Node{
		ID:        id.NewNodeID(),
		Hostname:  "remote-1",
		Resources: map[string]float64{"CPU": 2},
	}
	if err := rt.RegisterNode(testCtx(t), extra); err != nil {
		t.Fatalf("register node: %v", err)
	}

	if err := rt.Start(testCtx(t)); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Nobody heartbeats: both the local node and the extra node die.
	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindNodeRemoved, 2, 3*time.Second); err != nil {
		t.Fatalf("wait for node removals: %v", err)
	}

	// Dead is terminal: further intervals add no records.
	time.Sleep(5 * cfg.HeartbeatInterval)
	if n := countKind(t, rt, errlog.KindNodeRemoved); n != 2 {
		t.Errorf("expected exactly 2 node-removed records, got %d", n)
	}
}

func TestHeartbeatKeepsNodeAlive(t *testing.T) {
	cfg := vigil.DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatMissThreshold = 5
	rt := newTestRuntime(t, runtime.WithConfig(cfg))

	if err := rt.Start(testCtx(t)); err != nil {
		t.Fatalf("start: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.HeartbeatInterval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = rt.HandleHeartbeat(context.Background(), rt.LocalNode().ID)
			}
		}
	}()

	time.Sleep(time.Duration(3*cfg.HeartbeatMissThreshold) * cfg.HeartbeatInterval)
	if n := countKind(t, rt, errlog.KindNodeRemoved); n != 0 {
		t.Fatalf("heartbeating node must stay alive, got %d removals", n)
	}

	close(stop)
	<-done

	// Heartbeats stopped: the node dies once.
	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindNodeRemoved, 1, 3*time.Second); err != nil {
		t.Fatalf("wait for node removal: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Capacity
// ──────────────────────────────────────────────────

func TestInfeasibleDemandWarnsAndStaysQueued(t *testing.T) {
	rt := newTestRuntime(t, runtime.WithNodeResources(map[string]float64{"CPU": 1}))
	def := task.NewDefinition("gpu_task",
		func(context.Context, [][]byte) ([][]byte, error) {
			return [][]byte{nil}, nil
		},
		task.WithResources(map[string]float64{"GPU": 1}),
	)
	if err := rt.RegisterTask(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	call, err := rt.Submit(testCtx(t), "gpu_task", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	rt.Checker().Tick(testCtx(t))
	if n := countKind(t, rt, errlog.KindInfeasibleTask); n != 1 {
		t.Fatalf("expected 1 infeasible record, got %d", n)
	}

	// Immediate re-evaluation is throttled, not deduplicated.
	rt.Checker().Tick(testCtx(t))
	if n := countKind(t, rt, errlog.KindInfeasibleTask); n != 1 {
		t.Errorf("expected warning to be throttled, got %d", n)
	}

	// The request stays queued, never failed.
	select {
	case <-call.Results[0].Done():
		t.Error("infeasible request must stay pending")
	default:
	}
}

func TestBusyButFeasibleNeverWarns(t *testing.T) {
	rt := newTestRuntime(t, runtime.WithNodeResources(map[string]float64{"CPU": 1}))
	def := task.NewDefinition("cpu_task",
		func(context.Context, [][]byte) ([][]byte, error) {
			return [][]byte{nil}, nil
		},
		task.WithResources(map[string]float64{"CPU": 1}),
	)
	if err := rt.RegisterTask(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	call, err := rt.Submit(testCtx(t), "cpu_task", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := call.Get(testCtx(t)); err != nil {
		t.Fatalf("get: %v", err)
	}

	rt.Checker().Tick(testCtx(t))
	if n := countKind(t, rt, errlog.KindInfeasibleTask); n != 0 {
		t.Errorf("feasible demand must never warn, got %d", n)
	}
}

func TestWorkerPoolPressureWarns(t *testing.T) {
	rt := newTestRuntime(t, runtime.WithNodeResources(map[string]float64{"CPU": 1}))

	for range 5 {
		if _, err := rt.SpawnWorker(testCtx(t)); err != nil {
			t.Fatalf("spawn worker: %v", err)
		}
	}

	n := countKind(t, rt, errlog.KindWorkerPoolLarge)
	if n == 0 {
		t.Fatal("expected worker-pool pressure warnings")
	}

	// Re-observing the same pool size adds nothing.
	rt.Checker().ObservePoolSize(testCtx(t), 6, 1)
	if got := countKind(t, rt, errlog.KindWorkerPoolLarge); got != n {
		t.Errorf("expected no new warning for an unchanged multiple, got %d (was %d)", got, n)
	}
}

// ──────────────────────────────────────────────────
// Warnings and error delivery
// ──────────────────────────────────────────────────

func TestOversizedPayloadWarning(t *testing.T) {
	cfg := vigil.DefaultConfig()
	cfg.WarnPayloadSize = 16
	rt := newTestRuntime(t, runtime.WithConfig(cfg))
	if err := rt.RegisterTask(echoTask("echo")); err != nil {
		t.Fatalf("register: %v", err)
	}

	big := [][]byte{make([]byte, 256)}
	call, err := rt.Submit(testCtx(t), "echo", big)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := call.Get(testCtx(t)); err != nil {
		t.Fatalf("get: %v", err)
	}

	if n := countKind(t, rt, errlog.KindOversizedPayload); n != 1 {
		t.Errorf("expected 1 oversized-payload warning, got %d", n)
	}
}

func TestVersionMismatchRecorded(t *testing.T) {
	rt := newTestRuntime(t, runtime.WithVersion("1.2.3"))

	if err := rt.HandleVersion(testCtx(t), rt.JobID(), "9.9.9"); err != nil {
		t.Fatalf("handle version: %v", err)
	}
	if n := countKind(t, rt, errlog.KindVersionMismatch); n != 1 {
		t.Fatalf("expected 1 mismatch record, got %d", n)
	}

	records, err := rt.ListErrors(testCtx(t), errlog.Filter{Kind: errlog.KindVersionMismatch})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(records[0].Message, `"1.2.3"`) || !strings.Contains(records[0].Message, `"9.9.9"`) {
		t.Errorf("expected both versions in message, got %q", records[0].Message)
	}

	// A matching version never records.
	if err := rt.HandleVersion(testCtx(t), rt.JobID(), "1.2.3"); err != nil {
		t.Fatalf("handle version: %v", err)
	}
	if n := countKind(t, rt, errlog.KindVersionMismatch); n != 1 {
		t.Errorf("matching version must not record, got %d", n)
	}
}

func TestWaitForErrorCountTimeout(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, 1, 100*time.Millisecond)
	if !errors.Is(err, vigil.ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestListErrorsIdempotent(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterTask(failingTask("boom", "always fails")); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := range 3 {
		call, err := rt.Submit(testCtx(t), "boom", [][]byte{fmt.Appendf(nil, "%d", i)})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		_, _ = call.Get(testCtx(t))
	}
	if err := rt.WaitForErrorCount(testCtx(t), errlog.KindTaskExecution, 3, 2*time.Second); err != nil {
		t.Fatalf("wait for count: %v", err)
	}

	first, err := rt.ListErrors(testCtx(t), errlog.Filter{Kind: errlog.KindTaskExecution})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := rt.ListErrors(testCtx(t), errlog.Filter{Kind: errlog.KindTaskExecution})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("list length changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID.String() != second[i].ID.String() {
			t.Errorf("record %d: order changed between queries", i)
		}
	}
}
