package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider globally for the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	useTracer(t)
	ctx, span := StartSpan(context.Background(), "relay")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("CorrelationID = %q, want 32 lowercase hex chars", cid)
	}
}

func TestStartSessionSpan(t *testing.T) {
	exp := useTracer(t)

	ctx, parent := StartSpan(context.Background(), "HTTP GET /ws")
	_, span := StartSessionSpan(ctx, "message transcription", "sess-1", "conn-9")
	span.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	msg := spans[0]
	if msg.Name != "message transcription" {
		t.Errorf("span name = %q", msg.Name)
	}
	if msg.Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("session span is not a child of the request span")
	}
	got := map[string]string{}
	for _, kv := range msg.Attributes {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["aula.session_id"] != "sess-1" || got["aula.connection_id"] != "conn-9" {
		t.Errorf("attributes = %v", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	t.Run("with span", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := StartSpan(context.Background(), "log")
		defer span.End()

		Logger(ctx).Info("relayed")
		for _, key := range []string{"trace_id=", "span_id="} {
			if !strings.Contains(buf.String(), key) {
				t.Errorf("log output missing %s: %s", key, buf)
			}
		}
	})

	t.Run("without span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("relayed")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("log output should not contain trace_id: %s", buf)
		}
	})
}
