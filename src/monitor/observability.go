package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName    = "github.com/seuros/geoviz/src/monitor"
	instrumentationVersion = "0.1.0"
)

// instruments holds the OpenTelemetry instruments backing the monitor.
// Recording against them is a no-op unless the host installed a MeterProvider.
type instruments struct {
	meter metric.Meter

	fps            metric.Float64Histogram
	memoryMB       metric.Float64Histogram
	loadDuration   metric.Float64Histogram
	renderDuration metric.Float64Histogram
	renderErrors   metric.Int64Counter
	issues         metric.Int64Counter
}

func initInstruments() *instruments {
	meter := otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	in := &instruments{meter: meter}

	var err error

	in.fps, err = meter.Float64Histogram(
		"viz.frame_rate",
		metric.WithDescription("Sampled frames per second"),
		metric.WithUnit("{frame}/s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	in.memoryMB, err = meter.Float64Histogram(
		"viz.memory_usage",
		metric.WithDescription("Sampled process memory usage"),
		metric.WithUnit("MBy"),
	)
	if err != nil {
		otel.Handle(err)
	}

	in.loadDuration, err = meter.Float64Histogram(
		"viz.load.duration",
		metric.WithDescription("Duration of dataset load operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	in.renderDuration, err = meter.Float64Histogram(
		"viz.render.duration",
		metric.WithDescription("Duration of render operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	in.renderErrors, err = meter.Int64Counter(
		"viz.render.errors",
		metric.WithDescription("Number of failed render operations"),
	)
	if err != nil {
		otel.Handle(err)
	}

	in.issues, err = meter.Int64Counter(
		"viz.performance.issues",
		metric.WithDescription("Number of reported performance degradations"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return in
}

func (in *instruments) recordSample(s Sample) {
	ctx := context.Background()
	in.fps.Record(ctx, s.FPS)
	if s.MemoryValid {
		in.memoryMB.Record(ctx, s.MemoryMB)
	}
}

func (in *instruments) recordLoadTime(d time.Duration) {
	in.loadDuration.Record(context.Background(), d.Seconds())
}

func (in *instruments) recordRenderTime(d time.Duration, err error) {
	in.renderDuration.Record(context.Background(), d.Seconds())
	if err != nil {
		in.renderErrors.Add(context.Background(), 1)
	}
}

func (in *instruments) recordIssue(issue string) {
	in.issues.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("issue", issue)))
}
