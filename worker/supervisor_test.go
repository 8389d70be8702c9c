package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/middleware"
	"github.com/xraph/vigil/result"
	"github.com/xraph/vigil/store/memory"
	"github.com/xraph/vigil/task"
	"github.com/xraph/vigil/worker"
)

type supervisorFixture struct {
	store      *memory.Store
	log        *errlog.Log
	results    *result.Table
	supervisor *worker.Supervisor
}

func newSupervisorFixture(t *testing.T) *supervisorFixture {
	t.Helper()

	st := memory.New()
	log := errlog.NewLog(st)
	results := result.NewTable()
	s := worker.NewSupervisor(st, log, results, id.NewJobID())

	return &supervisorFixture{store: st, log: log, results: results, supervisor: s}
}

func (fx *supervisorFixture) registerWorker(t *testing.T, nodeID id.NodeID) *cluster.Worker {
	t.Helper()

	w := &cluster.Worker{ID: id.NewWorkerID(), NodeID: nodeID, State: cluster.WorkerActive}
	if err := fx.store.RegisterWorker(context.Background(), w); err != nil {
		t.Fatalf("register worker: %v", err)
	}

	return w
}

func countKind(t *testing.T, log *errlog.Log, kind errlog.Kind) int {
	t.Helper()

	n, err := log.Count(context.Background(), errlog.Filter{Kind: kind})
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	return n
}

func TestWorkerExitFailsAllPendingWithOneRecord(t *testing.T) {
	fx := newSupervisorFixture(t)
	w := fx.registerWorker(t, id.NewNodeID())

	first := fx.results.Register(id.NewCallID(), w.ID, 1)
	second := fx.results.Register(id.NewCallID(), w.ID, 2)

	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseKilled); err != nil {
		t.Fatalf("exit: %v", err)
	}

	for _, r := range append(first, second...) {
		_, err := r.Get(context.Background())
		if err == nil || !strings.Contains(err.Error(), "died or was killed while executing a task") {
			t.Errorf("expected worker-died failure, got %v", err)
		}
	}

	// One record regardless of how many results the worker owned.
	if n := countKind(t, fx.log, errlog.KindWorkerDied); n != 1 {
		t.Errorf("expected 1 worker-died record, got %d", n)
	}

	got, err := fx.store.GetWorker(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if got.State != cluster.WorkerDead {
		t.Errorf("expected dead worker, got %q", got.State)
	}
}

func TestDuplicateExitNotificationRecordsOnce(t *testing.T) {
	fx := newSupervisorFixture(t)
	w := fx.registerWorker(t, id.NewNodeID())
	fx.results.Register(id.NewCallID(), w.ID, 1)

	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseKilled); err != nil {
		t.Fatalf("first exit: %v", err)
	}
	// The process supervisor redelivers the notification.
	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseKilled); err != nil {
		t.Fatalf("second exit: %v", err)
	}

	if n := countKind(t, fx.log, errlog.KindWorkerDied); n != 1 {
		t.Errorf("expected 1 worker-died record across duplicate deliveries, got %d", n)
	}
}

func TestLateSubmissionAfterExitFailsImmediately(t *testing.T) {
	fx := newSupervisorFixture(t)
	w := fx.registerWorker(t, id.NewNodeID())

	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseCrashed); err != nil {
		t.Fatalf("exit: %v", err)
	}

	late := fx.results.Register(id.NewCallID(), w.ID, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := late[0].Get(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected immediate failure, got %v", err)
	}
}

func TestIntentionalExitReleasesSilently(t *testing.T) {
	fx := newSupervisorFixture(t)
	w := fx.registerWorker(t, id.NewNodeID())
	pending := fx.results.Register(id.NewCallID(), w.ID, 1)

	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseIntentional); err != nil {
		t.Fatalf("exit: %v", err)
	}

	if _, err := pending[0].Get(context.Background()); !errors.Is(err, vigil.ErrTerminated) {
		t.Errorf("expected silent terminated failure, got %v", err)
	}

	total, err := fx.log.Count(context.Background(), errlog.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("intentional exit must not record, got %d", total)
	}
}

func TestCrashReportThenExit(t *testing.T) {
	fx := newSupervisorFixture(t)
	w := fx.registerWorker(t, id.NewNodeID())

	if err := fx.supervisor.OnWorkerCrash(context.Background(), w.ID, "stack overflow"); err != nil {
		t.Fatalf("crash: %v", err)
	}
	if err := fx.supervisor.OnWorkerExit(context.Background(), w.ID, worker.CauseCrashed); err != nil {
		t.Fatalf("exit: %v", err)
	}

	if n := countKind(t, fx.log, errlog.KindWorkerCrashed); n != 1 {
		t.Errorf("expected 1 crash record, got %d", n)
	}
	if n := countKind(t, fx.log, errlog.KindWorkerDied); n != 1 {
		t.Errorf("expected 1 death record, got %d", n)
	}

	records, err := fx.log.List(context.Background(), errlog.Filter{Kind: errlog.KindWorkerCrashed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(records[0].Message, "stack overflow") {
		t.Errorf("expected crash reason verbatim, got %q", records[0].Message)
	}
}

func TestNodeDeathFailsWorkersResults(t *testing.T) {
	fx := newSupervisorFixture(t)
	node := &cluster.Node{ID: id.NewNodeID(), Hostname: "doomed"}
	if err := fx.store.RegisterNode(context.Background(), node); err != nil {
		t.Fatalf("register node: %v", err)
	}
	w1 := fx.registerWorker(t, node.ID)
	w2 := fx.registerWorker(t, node.ID)
	other := fx.registerWorker(t, id.NewNodeID())

	p1 := fx.results.Register(id.NewCallID(), w1.ID, 1)
	p2 := fx.results.Register(id.NewCallID(), w2.ID, 1)
	p3 := fx.results.Register(id.NewCallID(), other.ID, 1)

	fx.supervisor.HandleNodeDeath(context.Background(), node)

	for _, r := range []*result.Result{p1[0], p2[0]} {
		_, err := r.Get(context.Background())
		if err == nil || !strings.Contains(err.Error(), "has been marked dead") {
			t.Errorf("expected node-death failure, got %v", err)
		}
	}
	if p3[0].State() != result.StatePending {
		t.Error("workers on other nodes must be unaffected")
	}

	// The node-removed record belongs to the monitor; the supervisor
	// emits no per-worker records here.
	total, err := fx.log.Count(context.Background(), errlog.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("expected no supervisor records on node death, got %d", total)
	}
}

// ──────────────────────────────────────────────────
// Sandbox
// ──────────────────────────────────────────────────

func TestSandboxSuccess(t *testing.T) {
	sb := worker.NewSandbox(nil)
	inv := &task.Invocation{CallID: id.NewCallID(), Name: "echo", NumReturns: 1}

	outcome := sb.Run(context.Background(), inv, func(_ context.Context, args [][]byte) ([][]byte, error) {
		return [][]byte{[]byte("ok")}, nil
	})

	if !outcome.Ok() {
		t.Fatalf("expected success, got %v", outcome.Failure)
	}
	if string(outcome.Values[0]) != "ok" {
		t.Errorf("expected ok, got %q", outcome.Values[0])
	}
}

func TestSandboxErrorBecomesFailureOutcome(t *testing.T) {
	sb := worker.NewSandbox(nil)
	inv := &task.Invocation{CallID: id.NewCallID(), Name: "boom", NumReturns: 1}

	outcome := sb.Run(context.Background(), inv, func(context.Context, [][]byte) ([][]byte, error) {
		return nil, errors.New("user error")
	})

	if outcome.Ok() {
		t.Fatal("expected failure")
	}
	if outcome.Failure.Kind != errlog.KindTaskExecution {
		t.Errorf("expected task-execution kind, got %q", outcome.Failure.Kind)
	}
	if outcome.Failure.Message != "user error" {
		t.Errorf("expected message verbatim, got %q", outcome.Failure.Message)
	}
}

func TestSandboxRecoversPanic(t *testing.T) {
	sb := worker.NewSandbox(nil)
	inv := &task.Invocation{CallID: id.NewCallID(), Name: "panics", NumReturns: 1}

	outcome := sb.Run(context.Background(), inv, func(context.Context, [][]byte) ([][]byte, error) {
		panic("index out of range")
	})

	if outcome.Ok() {
		t.Fatal("expected failure from panic")
	}
	if !strings.Contains(outcome.Failure.Message, "index out of range") {
		t.Errorf("expected panic message preserved, got %q", outcome.Failure.Message)
	}
}

func TestSandboxTimeoutMiddleware(t *testing.T) {
	sb := worker.NewSandbox(nil, middleware.Timeout(slog.Default()))
	inv := &task.Invocation{
		CallID:     id.NewCallID(),
		Name:       "slow",
		NumReturns: 1,
		Timeout:    20 * time.Millisecond,
	}

	outcome := sb.Run(context.Background(), inv, func(ctx context.Context, _ [][]byte) ([][]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return [][]byte{nil}, nil
		}
	})

	if outcome.Ok() {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(outcome.Failure.Message, "deadline") {
		t.Errorf("expected deadline error, got %q", outcome.Failure.Message)
	}
}
