package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewLogProvider returns a tracer provider whose only processor mirrors
// span lifecycles to the default slog logger. Successful steps log at
// debug, failures at warn.
func NewLogProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(logProcessor{}))
}

type logProcessor struct{}

func (logProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	slog.Debug("Step started.", "step", s.Name())
}

func (logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	elapsed := s.EndTime().Sub(s.StartTime())
	if s.Status().Code == codes.Error {
		slog.Warn("Step failed.", "step", s.Name(), "elapsed", elapsed, "err", s.Status().Description)
		return
	}
	slog.Debug("Step finished.", "step", s.Name(), "elapsed", elapsed)
}

func (logProcessor) Shutdown(context.Context) error   { return nil }
func (logProcessor) ForceFlush(context.Context) error { return nil }
