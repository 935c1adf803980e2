package telemetry

import (
	"context"

	"github.com/vrlabs/vrd/internal/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logExporter is a minimal sdktrace.SpanExporter that logs completed
// spans via internal/logger instead of shipping them to a collector.
// It exists so Init can wire a real SDK batcher/exporter pair without
// this engine taking on an outbound network dependency.
type logExporter struct{}

func newLogExporter() sdktrace.SpanExporter {
	return logExporter{}
}

func (logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		logger.Debug("span",
			"name", s.Name(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		)
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }
