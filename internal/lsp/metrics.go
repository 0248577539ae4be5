package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codescape.lsp")
	meter  = otel.Meter("codescape.lsp")
)

var (
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	serverStarts    metric.Int64Counter
	symbolCacheHits metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		if requestDuration, err = meter.Float64Histogram(
			"codescape_lsp_request_duration_seconds",
			metric.WithDescription("Duration of language server requests"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if requestTotal, err = meter.Int64Counter(
			"codescape_lsp_request_total",
			metric.WithDescription("Language server requests by method and outcome"),
		); err != nil {
			metricsErr = err
			return
		}
		if serverStarts, err = meter.Int64Counter(
			"codescape_lsp_server_starts_total",
			metric.WithDescription("Language server start attempts"),
		); err != nil {
			metricsErr = err
			return
		}
		symbolCacheHits, metricsErr = meter.Int64Counter(
			"codescape_lsp_symbol_cache_hits_total",
			metric.WithDescription("documentSymbol replies served from the session cache"),
		)
	})
	return metricsErr
}

func startSpan(ctx context.Context, method, language, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+method, trace.WithAttributes(
		attribute.String("lsp.method", method),
		attribute.String("lsp.language", language),
		attribute.String("lsp.path", path),
	))
}

func recordRequest(ctx context.Context, method, language string, started time.Time, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("language", language),
		attribute.Bool("success", err == nil),
	)
	requestDuration.Record(ctx, time.Since(started).Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordServerStart(ctx context.Context, language string, err error) {
	if initMetrics() != nil {
		return
	}
	serverStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", err == nil),
	))
}

func recordSymbolCacheHit(ctx context.Context, language string) {
	if initMetrics() != nil {
		return
	}
	symbolCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}
