package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// StartCommandSpan creates a span for a CLI command execution.
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("practicedesk/cmd")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartRequestSpan creates a span covering one gateway call, including any
// refresh and retry it triggers.
//
// Usage:
//
//	ctx, span := telemetry.StartRequestSpan(ctx, http.MethodGet, "/patients")
//	defer span.End()
func StartRequestSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("practicedesk/platform")
	ctx, span := tracer.Start(ctx, "gateway "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("component", "gateway"),
	)

	return ctx, span
}

// StartRefreshSpan creates a span for a refresh-token exchange.
func StartRefreshSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("practicedesk/refresh")
	ctx, span := tracer.Start(ctx, "refresh.exchange")

	span.SetAttributes(attribute.String("component", "refresh"))

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// Coded errors also contribute their code and HTTP status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error", true))

	if de, ok := errors.As(err); ok {
		span.SetAttributes(attribute.String("error.code", string(de.Code)))
		if de.Status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", de.Status))
		}
	}
}

// RecordStatus attaches the HTTP status of a response to span.
func RecordStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
