package lemonsqueezy

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderPayload = `{
  "meta": {
    "event_name": "order_created",
    "webhook_id": "wh_1",
    "custom_data": {"device_id": "3f1c6f0e-2b7a-4c1e-9d3c-0a1b2c3d4e5f", "credits": "15"}
  },
  "data": {
    "type": "orders",
    "id": "1234567",
    "attributes": {
      "user_email": "buyer@example.com",
      "total": 500,
      "currency": "usd",
      "status": "paid",
      "created_at": "2026-03-01T12:00:00.000000Z",
      "first_order_item": {"product_name": "15 Try Pack"}
    }
  }
}`

func newAdapter(t *testing.T) paymentdomain.Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{WebhookSecret: "lemon-secret"})
	require.NoError(t, err)
	return adapter
}

func TestVerifySignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(orderPayload)

	headers := http.Header{}
	headers.Set("X-Signature", adapters.SignHexHMAC("lemon-secret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Signature", "sha256="+adapters.SignHexHMAC("lemon-secret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Signature", adapters.SignHexHMAC("wrong", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, http.Header{}), paymentdomain.ErrInvalidSignature)
}

func TestParseOrderCreated(t *testing.T) {
	event, err := newAdapter(t).Parse(context.Background(), []byte(orderPayload))
	require.NoError(t, err)

	assert.Equal(t, "lemonsqueezy", event.Provider)
	assert.Equal(t, "1234567", event.ProviderPaymentID)
	assert.Equal(t, "wh_1", event.ProviderEventID)
	assert.Equal(t, "3f1c6f0e-2b7a-4c1e-9d3c-0a1b2c3d4e5f", event.IdentityRef)
	assert.Equal(t, int64(15), event.Credits)
	assert.Equal(t, int64(500), event.Amount)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, "buyer@example.com", event.ContactAddress)
	assert.Equal(t, "15 Try Pack", event.ProductName)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), event.OccurredAt)
}

func TestParseNumericCustomData(t *testing.T) {
	payload := `{"meta":{"event_name":"order_created","custom_data":{"device_id":"abc","credits":5}},"data":{"id":"9","attributes":{}}}`
	event, err := newAdapter(t).Parse(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(5), event.Credits)
	assert.Equal(t, "USD", event.Currency)
}

func TestParseRejections(t *testing.T) {
	adapter := newAdapter(t)

	_, err := adapter.Parse(context.Background(), []byte(`{"meta":{"event_name":"subscription_created"},"data":{"id":"1"}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`{"meta":{"event_name":"order_created"},"data":{}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{WebhookSecret: " "})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
