package delivery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-voice/internal/delivery"

type metrics struct {
	deliveries metric.Int64Counter
	failures   metric.Int64Counter
	leaks      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	deliveries, err := meter.Int64Counter("loqa_voice_deliveries",
		metric.WithDescription("Responses delivered, by outcome and winning strategy"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("loqa_voice_attempt_failures",
		metric.WithDescription("Failed single delivery attempts, by stage"))
	if err != nil {
		return nil, err
	}
	leaks, err := meter.Int64Counter("loqa_voice_tempfile_leaks",
		metric.WithDescription("Temp audio files that could not be deleted"))
	if err != nil {
		return nil, err
	}
	return &metrics{deliveries: deliveries, failures: failures, leaks: leaks}, nil
}

func (m *metrics) delivered(ctx context.Context, res Result) {
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.String("strategy", res.Strategy),
	))
}

func (m *metrics) attemptFailed(ctx context.Context, stage string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *metrics) leaked() {
	m.leaks.Add(context.Background(), 1)
}
