package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/ext"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/task"
)

// meterName is the instrumentation scope name for vigil metrics.
const meterName = "github.com/xraph/vigil"

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.ErrorRecorded    = (*MetricsExtension)(nil)
	_ ext.TaskFailed       = (*MetricsExtension)(nil)
	_ ext.NodeDead         = (*MetricsExtension)(nil)
	_ ext.WorkerExited     = (*MetricsExtension)(nil)
	_ ext.ActorConstructed = (*MetricsExtension)(nil)
	_ ext.ActorTerminated  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OpenTelemetry.
// Register it as a Vigil extension to automatically track error record
// counts by kind, node deaths, worker exits by cause, task failures, and
// actor lifecycle events.
type MetricsExtension struct {
	errorsRecorded   metric.Int64Counter
	tasksFailed      metric.Int64Counter
	nodesDead        metric.Int64Counter
	workersExited    metric.Int64Counter
	actorsCreated    metric.Int64Counter
	actorsTerminated metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. With no MeterProvider configured the instruments are
// noops, so registering the extension is always safe.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.errorsRecorded, _ = meter.Int64Counter(
		"vigil.errors.recorded",
		metric.WithDescription("Total error records appended to the log"),
		metric.WithUnit("{record}"),
	)
	m.tasksFailed, _ = meter.Int64Counter(
		"vigil.tasks.failed",
		metric.WithDescription("Total task invocations resolved to failure"),
		metric.WithUnit("{task}"),
	)
	m.nodesDead, _ = meter.Int64Counter(
		"vigil.nodes.dead",
		metric.WithDescription("Total nodes declared dead by the heartbeat monitor"),
		metric.WithUnit("{node}"),
	)
	m.workersExited, _ = meter.Int64Counter(
		"vigil.workers.exited",
		metric.WithDescription("Total worker process exits"),
		metric.WithUnit("{worker}"),
	)
	m.actorsCreated, _ = meter.Int64Counter(
		"vigil.actors.constructed",
		metric.WithDescription("Total actor constructor completions"),
		metric.WithUnit("{actor}"),
	)
	m.actorsTerminated, _ = meter.Int64Counter(
		"vigil.actors.terminated",
		metric.WithDescription("Total intentional actor terminations"),
		metric.WithUnit("{actor}"),
	)

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Error pipeline hooks ────────────────────────────

// OnErrorRecorded implements ext.ErrorRecorded.
func (m *MetricsExtension) OnErrorRecorded(ctx context.Context, r *errlog.Record) error {
	m.errorsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(r.Kind)),
	))
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, _ id.CallID, info *task.FailureInfo) error {
	m.tasksFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(info.Kind)),
	))
	return nil
}

// ── Cluster lifecycle hooks ─────────────────────────

// OnNodeDead implements ext.NodeDead.
func (m *MetricsExtension) OnNodeDead(ctx context.Context, _ *cluster.Node) error {
	m.nodesDead.Add(ctx, 1)
	return nil
}

// OnWorkerExited implements ext.WorkerExited.
func (m *MetricsExtension) OnWorkerExited(ctx context.Context, _ id.WorkerID, cause string) error {
	m.workersExited.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cause", cause),
	))
	return nil
}

// ── Actor lifecycle hooks ───────────────────────────

// OnActorConstructed implements ext.ActorConstructed.
func (m *MetricsExtension) OnActorConstructed(ctx context.Context, _ id.ActorID, ok bool) error {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.actorsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	return nil
}

// OnActorTerminated implements ext.ActorTerminated.
func (m *MetricsExtension) OnActorTerminated(ctx context.Context, _ id.ActorID) error {
	m.actorsTerminated.Add(ctx, 1)
	return nil
}
