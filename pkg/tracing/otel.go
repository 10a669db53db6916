// Copyright 2026 fanjia1024
// OpenTelemetry integration for sync and estimation tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "scopekit"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartDrainSpan 开始一个 drain 周期 span
func StartDrainSpan(ctx context.Context, queueLen int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sync.drain",
		trace.WithAttributes(
			attribute.Int("sync.queue_length", queueLen),
		),
	)
}

// StartItemSpan 开始单个队列项处理 span
func StartItemSpan(ctx context.Context, itemID, kind string, attempts int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sync.item",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("item.kind", kind),
			attribute.Int("item.attempts", attempts),
		),
	)
}

// StartEstimationSpan 开始估算触发/重试 span
func StartEstimationSpan(ctx context.Context, op, visitID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "estimation."+op,
		trace.WithAttributes(
			attribute.String("visit.id", visitID),
		),
	)
}

// EndSpan 记录错误（如有）并结束 span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
