package recovery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Blackdeer1524/xalog/src/recovery"

type logMetrics struct {
	appended  metric.Int64Counter
	forces    metric.Int64Counter
	recovered metric.Int64Counter
	tracer    trace.Tracer
}

func newLogMetrics() (*logMetrics, error) {
	meter := otel.Meter(instrumentationName)

	appended, err := meter.Int64Counter(
		"xalog.log.entries",
		metric.WithDescription("Entries appended to the logical log"),
	)
	if err != nil {
		return nil, err
	}

	forces, err := meter.Int64Counter(
		"xalog.log.forces",
		metric.WithDescription("Forces of the logical log to stable storage"),
	)
	if err != nil {
		return nil, err
	}

	recovered, err := meter.Int64Counter(
		"xalog.log.recovered_transactions",
		metric.WithDescription("Transactions left open by the recovery scan"),
	)
	if err != nil {
		return nil, err
	}

	return &logMetrics{
		appended:  appended,
		forces:    forces,
		recovered: recovered,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

func (m *logMetrics) entryAppended(tag EntryTag) {
	m.appended.Add(
		context.Background(),
		1,
		metric.WithAttributes(attribute.String("kind", tag.String())),
	)
}

func (m *logMetrics) forced() {
	m.forces.Add(context.Background(), 1)
}

func (m *logMetrics) startScan(ctx context.Context, path string) (context.Context, trace.Span) {
	return m.tracer.Start(
		ctx,
		"recovery.scan",
		trace.WithAttributes(attribute.String("log.path", path)),
	)
}

func endScan(span trace.Span, entries int, pending int, err error) {
	span.SetAttributes(
		attribute.Int("log.entries", entries),
		attribute.Int("log.pending", pending),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
