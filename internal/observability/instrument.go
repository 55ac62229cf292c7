package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module as the OpenTelemetry log scope.
const instrumentationName = "github.com/dattormm/datto-go"

// Exporter values accepted by Instrument.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Options selects how logs are produced.
type Options struct {
	Level slog.Level
	// Format is "text" or "json" and applies when Exporter is "none".
	Format string
	// Exporter routes logs through an OpenTelemetry pipeline unless "none" or empty.
	// OTLP exporters read their endpoint from the standard OTEL_EXPORTER_OTLP_* variables.
	Exporter string
	// Output receives human-readable logs. Defaults to os.Stderr.
	Output io.Writer
}

// Instrument installs the default slog logger and the W3C trace context
// propagator. The returned function flushes and stops any export pipeline.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	exporter := strings.ToLower(opts.Exporter)
	if exporter == "" || exporter == ExporterNone {
		handler, err := newWriterHandler(opts)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(newContextHandler(handler)))
		return func(context.Context) error { return nil }, nil
	}

	logExporter, err := newLogExporter(ctx, exporter)
	if err != nil {
		return nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(logExporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	handler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(newContextHandler(handler)))

	return provider.Shutdown, nil
}

// newWriterHandler creates a handler for human-readable logs.
func newWriterHandler(opts Options) (slog.Handler, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.NewJSONHandler(out, handlerOpts), nil
	case "text", "":
		return slog.NewTextHandler(out, handlerOpts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", opts.Format)
	}
}

func newLogExporter(ctx context.Context, exporter string) (sdklog.Exporter, error) {
	switch exporter {
	case ExporterStdout:
		return stdoutlog.New()
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", exporter)
	}
}

// severity maps a slog level onto the OpenTelemetry severity floor.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
