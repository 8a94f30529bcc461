// Package observability wires OpenTelemetry tracing around Stage
// Driver invocations and Orchestrator stage runs, off by default and
// enabled only when OTEL_ENABLED is set. Grounded on the teacher's
// internal/observability/otel.go: a sync.Once-guarded TracerProvider
// pointed at an OTLP/HTTP endpoint when OTEL_EXPORTER_OTLP_ENDPOINT is
// set, falling back to a stdout exporter otherwise, with a
// ratio-based sampler so tracing overhead stays bounded in production.
package observability

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

var (
	tracerOnce sync.Once
	shutdown   func(context.Context) error
	tracer     = otel.Tracer("pipeline")
)

// Init starts the TracerProvider once per process. Returns a shutdown
// func that flushes pending spans; callers should invoke it from
// App.Close. A no-op shutdown is returned when tracing is disabled.
func Init(ctx context.Context, log *logger.Logger, serviceName string) func(context.Context) error {
	tracerOnce.Do(func() {
		if !enabled() {
			shutdown = func(context.Context) error { return nil }
			return
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("service.component", "worker"),
		))
		if err != nil && log != nil {
			log.Warn("otel resource init failed, continuing", "error", err)
		}

		exporter, expErr := buildExporter(ctx, log)
		if expErr != nil && log != nil {
			log.Warn("otel exporter init failed, continuing without spans", "error", expErr)
		}

		var opts []sdktrace.TracerProviderOption
		opts = append(opts, sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))), sdktrace.WithResource(res))
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		tracer = otel.Tracer("pipeline")
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "service", serviceName, "endpoint", endpoint())
		}
	})
	if shutdown == nil {
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// StartStage opens a span covering one Stage Driver invocation.
func StartStage(ctx context.Context, stage, taskID string, subItem int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "stage."+stage, trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Int("sub_item", subItem),
	))
}

// StartOrchestratorRun opens a span covering one Orchestrator.Run call
// across all of a stage's pending sub-items.
func StartOrchestratorRun(ctx context.Context, stage, taskID string, total int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestrator.run."+stage, trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Int("total_sub_items", total),
	))
}

func enabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func sampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 0.1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func endpoint() string {
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	if ep := endpoint(); ep != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(ep)}
		if v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))); v == "1" || v == "true" {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	if log != nil {
		log.Warn("otel using stdout exporter, no OTLP endpoint configured")
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
