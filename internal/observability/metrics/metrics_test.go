package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "razorpay"),
		attribute.String("identity_id", "456"),
		attribute.String("status", "applied"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
	assert.Equal(t, attribute.Key("status"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCreditOperation(context.Background(), "spend", "ok")
		m.RecordPaymentEvent(context.Background(), "lemonsqueezy", "duplicate")
	})
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "tryon"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordIdentityResolution(context.Background(), "token")
		m.RecordRateLimitDenied(context.Background(), "origin")
	})
}
