package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitTracerDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	shutdown, err := InitTracer(DefaultConfig("ipo-test"), logger)
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	AddSpanAttributes(ctx, attribute.String("phase", "icmp"))
	AddSpanEvent(ctx, "phase.started")
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
}

func TestGetTracerStartsSpan(t *testing.T) {
	ctx, span := GetTracer("ipo/test").Start(context.Background(), "benchmark.icmp")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a context")
	}
	AddSpanEvent(ctx, "sampled", attribute.Int("count", 3))
}
