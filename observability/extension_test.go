package observability_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/observability"
	"github.com/xraph/vigil/task"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ext := observability.NewMetricsExtensionWithMeter(provider.Meter("test"))

	return ext, reader
}

// counterSum collects and sums all data points of the named counter.
func counterSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_ErrorRecorded(t *testing.T) {
	e, reader := newTestExtension(t)

	rec := &errlog.Record{Kind: errlog.KindWorkerDied}
	if err := e.OnErrorRecorded(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterSum(t, reader, "vigil.errors.recorded"); got != 1 {
		t.Errorf("vigil.errors.recorded: want 1, got %d", got)
	}
}

func TestMetricsExtension_TaskFailed(t *testing.T) {
	e, reader := newTestExtension(t)

	info := &task.FailureInfo{Kind: errlog.KindTaskExecution, Message: "boom"}
	if err := e.OnTaskFailed(context.Background(), id.NewCallID(), info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterSum(t, reader, "vigil.tasks.failed"); got != 1 {
		t.Errorf("vigil.tasks.failed: want 1, got %d", got)
	}
}

func TestMetricsExtension_NodeDead(t *testing.T) {
	e, reader := newTestExtension(t)

	if err := e.OnNodeDead(context.Background(), &cluster.Node{ID: id.NewNodeID()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterSum(t, reader, "vigil.nodes.dead"); got != 1 {
		t.Errorf("vigil.nodes.dead: want 1, got %d", got)
	}
}

func TestMetricsExtension_WorkerExited(t *testing.T) {
	e, reader := newTestExtension(t)

	if err := e.OnWorkerExited(context.Background(), id.NewWorkerID(), "crashed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterSum(t, reader, "vigil.workers.exited"); got != 1 {
		t.Errorf("vigil.workers.exited: want 1, got %d", got)
	}
}

func TestMetricsExtension_ActorLifecycle(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	if err := e.OnActorConstructed(ctx, id.NewActorID(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnActorConstructed(ctx, id.NewActorID(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnActorTerminated(ctx, id.NewActorID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterSum(t, reader, "vigil.actors.constructed"); got != 2 {
		t.Errorf("vigil.actors.constructed: want 2, got %d", got)
	}
	if got := counterSum(t, reader, "vigil.actors.terminated"); got != 1 {
		t.Errorf("vigil.actors.terminated: want 1, got %d", got)
	}
}

func TestMetricsExtension_ErrorKindsSeparateSeries(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	kinds := []errlog.Kind{
		errlog.KindTaskExecution,
		errlog.KindTaskExecution,
		errlog.KindNodeRemoved,
	}
	for _, k := range kinds {
		if err := e.OnErrorRecorded(ctx, &errlog.Record{Kind: k}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Three records total across the two kind series.
	if got := counterSum(t, reader, "vigil.errors.recorded"); got != 3 {
		t.Errorf("vigil.errors.recorded: want 3, got %d", got)
	}
}
