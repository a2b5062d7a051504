package render

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/seuros/geoviz/src/render"
	instrumentationVersion = "0.1.0"
)

// observabilityInstruments holds the OpenTelemetry instruments for the
// rendering layer.
type observabilityInstruments struct {
	tracer trace.Tracer
	meter  metric.Meter

	renderDuration metric.Float64Histogram
	renderCount    metric.Int64Counter
	renderErrors   metric.Int64Counter
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	pointsRendered metric.Int64Counter
	truncations    metric.Int64Counter
	superseded     metric.Int64Counter
}

func initObservability() *observabilityInstruments {
	tracer := otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
	meter := otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	instruments := &observabilityInstruments{
		tracer: tracer,
		meter:  meter,
	}

	var err error

	instruments.renderDuration, err = meter.Float64Histogram(
		"viz.render.pipeline.duration",
		metric.WithDescription("Duration of full render requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.renderCount, err = meter.Int64Counter(
		"viz.render.requests",
		metric.WithDescription("Number of render requests"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.renderErrors, err = meter.Int64Counter(
		"viz.render.request_errors",
		metric.WithDescription("Number of failed render requests"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.cacheHits, err = meter.Int64Counter(
		"viz.cache.hits",
		metric.WithDescription("Visualization cache hits"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.cacheMisses, err = meter.Int64Counter(
		"viz.cache.misses",
		metric.WithDescription("Visualization cache misses"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.pointsRendered, err = meter.Int64Counter(
		"viz.points.rendered",
		metric.WithDescription("Number of points applied to the backend"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.truncations, err = meter.Int64Counter(
		"viz.points.truncations",
		metric.WithDescription("Number of renders down-sampled to the display cap"),
	)
	if err != nil {
		otel.Handle(err)
	}

	instruments.superseded, err = meter.Int64Counter(
		"viz.render.superseded",
		metric.WithDescription("Number of renders discarded because a newer request superseded them"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return instruments
}

// spanContext holds span-specific context information.
type spanContext struct {
	span      trace.Span
	startTime time.Time
}

func (oi *observabilityInstruments) startRenderSpan(ctx context.Context, mode Mode, dataType, requestID string, points int, cfg *ObservabilityConfig) (context.Context, *spanContext) {
	if oi == nil || !cfg.EnableTracing {
		return ctx, &spanContext{startTime: time.Now()}
	}

	ctx, span := oi.tracer.Start(ctx, "viz.render",
		trace.WithAttributes(
			attribute.String("viz.mode", string(mode)),
			attribute.String("viz.data_type", dataType),
			attribute.String("viz.request_id", requestID),
			attribute.Int("viz.points.input", points),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, &spanContext{span: span, startTime: time.Now()}
}

func (oi *observabilityInstruments) finishRenderSpan(spanCtx *spanContext, vis *Visualization, err error, cfg *ObservabilityConfig) {
	duration := time.Since(spanCtx.startTime)

	if oi != nil && cfg.EnableMetrics {
		ctx := context.Background()
		oi.renderDuration.Record(ctx, duration.Seconds())
		oi.renderCount.Add(ctx, 1)
		switch {
		case err == ErrSuperseded:
			oi.superseded.Add(ctx, 1)
		case err != nil:
			oi.renderErrors.Add(ctx, 1)
		case vis != nil:
			oi.pointsRendered.Add(ctx, int64(vis.Rendered))
			if vis.Truncated {
				oi.truncations.Add(ctx, 1)
			}
		}
	}

	if spanCtx.span == nil {
		return
	}
	if err != nil && err != ErrSuperseded {
		spanCtx.span.RecordError(err)
		spanCtx.span.SetStatus(codes.Error, err.Error())
	} else {
		spanCtx.span.SetStatus(codes.Ok, "")
		if vis != nil {
			spanCtx.span.SetAttributes(
				attribute.Int("viz.points.rendered", vis.Rendered),
				attribute.Bool("viz.truncated", vis.Truncated),
			)
		}
	}
	spanCtx.span.End()
}

func (oi *observabilityInstruments) recordCacheLookup(hit bool, cfg *ObservabilityConfig) {
	if oi == nil || !cfg.EnableMetrics {
		return
	}
	if hit {
		oi.cacheHits.Add(context.Background(), 1)
	} else {
		oi.cacheMisses.Add(context.Background(), 1)
	}
}
