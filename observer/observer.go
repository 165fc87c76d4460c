// Package observer provides OTEL-based observability for the agent runtime.
//
// It supplies a dabgent.Tracer (NewTracer) plus a set of metric instruments
// for handled commands, concurrency retries, tool executions and LLM
// requests. Export to any
// OTEL-compatible backend by setting the standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	agentlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/dabgent/dabgent/observer"

// Instruments holds every OTEL instrument the runtime emits to.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger agentlog.Logger

	// Counters
	CommandsHandled   metric.Int64Counter
	ConcurrencyRetries metric.Int64Counter
	ToolExecutions    metric.Int64Counter
	LLMRequests       metric.Int64Counter

	// Histograms
	HandlerDuration metric.Float64Histogram
	ToolDuration    metric.Float64Histogram
	LLMDuration     metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("agentd")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	commandsHandled, err := meter.Int64Counter("handler.commands",
		metric.WithDescription("Commands handled, by aggregate type"),
		metric.WithUnit("{command}"))
	if err != nil {
		return nil, err
	}

	concurrencyRetries, err := meter.Int64Counter("handler.concurrency_retries",
		metric.WithDescription("Handler.Execute retries caused by a ConcurrencyError"),
		metric.WithUnit("{retry}"))
	if err != nil {
		return nil, err
	}

	toolExecutions, err := meter.Int64Counter("tool.executions",
		metric.WithDescription("Tool invocations, by tool name"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	llmRequests, err := meter.Int64Counter("llm.requests",
		metric.WithDescription("Completion requests sent to a Provider"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	handlerDuration, err := meter.Float64Histogram("handler.duration",
		metric.WithDescription("Handler.Execute duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	toolDuration, err := meter.Float64Histogram("tool.duration",
		metric.WithDescription("Tool execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	llmDuration, err := meter.Float64Histogram("llm.duration",
		metric.WithDescription("Provider.Completion duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:              tracer,
		Meter:               meter,
		Logger:              logger,
		CommandsHandled:     commandsHandled,
		ConcurrencyRetries:  concurrencyRetries,
		ToolExecutions:      toolExecutions,
		LLMRequests:         llmRequests,
		HandlerDuration:     handlerDuration,
		ToolDuration:        toolDuration,
		LLMDuration:         llmDuration,
	}, nil
}
