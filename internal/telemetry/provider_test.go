package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitProviderDisabled(t *testing.T) {
	config := DefaultConfig()

	ctx := context.Background()
	shutdown, err := InitProvider(ctx, config)
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected shutdown function, got nil")
	}

	if _, ok := GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", GetTracerProvider())
	}

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func TestInitProviderEnabled(t *testing.T) {
	for _, endpoint := range []string{"collector.example.com:4318", "https://collector.example.com/v1/traces"} {
		t.Run(endpoint, func(t *testing.T) {
			config := DefaultConfig()
			config.Enabled = true
			config.Endpoint = endpoint
			config.SampleRate = 0.5

			ctx := context.Background()
			shutdown, err := InitProvider(ctx, config)
			if err != nil {
				t.Fatalf("InitProvider failed: %v", err)
			}
			if shutdown == nil {
				t.Fatal("expected shutdown function, got nil")
			}
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_ = shutdown(cancelled)
		})
	}
}

func TestInitProviderWithoutEndpointRecordsSpans(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true

	shutdown, err := InitProvider(context.Background(), config)
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected sdk provider, got %T", GetTracerProvider())
	}
	_, span := StartCommandSpan(context.Background(), "practicedesk auth status")
	defer span.End()
	if !span.SpanContext().IsSampled() {
		t.Error("expected span to be sampled")
	}
}
