package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs a global tracer provider. Spans are exported to
// stdout when OTEL_STDOUT is set; otherwise the no-op provider stays in place.
func InitTracing(cfg *Config) (func(context.Context) error, error) {
	if !cfg.OTelStdout {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// InitSentry configures error reporting when SENTRY_DSN is set. The returned
// flush func must run before exit.
func InitSentry(cfg *Config, logger Logger) func() {
	if cfg.SentryDSN == "" {
		logger.Debug().Msg("sentry disabled")
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		AttachStacktrace: true,
		TracesSampleRate: 0.2,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("sentry init failed")
		return func() {}
	}
	return func() { sentry.Flush(2 * time.Second) }
}
