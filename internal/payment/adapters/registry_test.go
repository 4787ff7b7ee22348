package adapters

import (
	"context"
	"net/http"
	"testing"

	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFactory struct{ provider string }

func (f fakeFactory) Provider() string { return f.provider }

func (f fakeFactory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	if cfg.WebhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}
	return fakeAdapter{provider: f.provider}, nil
}

type fakeAdapter struct{ provider string }

func (a fakeAdapter) Provider() string { return a.provider }

func (fakeAdapter) Verify(context.Context, []byte, http.Header) error { return nil }

func (fakeAdapter) Parse(context.Context, []byte) (*domain.PaymentEvent, error) {
	return nil, domain.ErrEventIgnored
}

func TestRegistryAdapter(t *testing.T) {
	registry := NewRegistry(
		map[string]domain.AdapterConfig{" LemonSqueezy ": {WebhookSecret: "s"}, "razorpay": {}},
		fakeFactory{provider: ProviderLemonSqueezy},
		fakeFactory{provider: ProviderRazorpay},
		fakeFactory{provider: ProviderPayPal},
		nil,
	)

	adapter, err := registry.Adapter("LEMONSQUEEZY")
	require.NoError(t, err)
	assert.Equal(t, ProviderLemonSqueezy, adapter.Provider())

	_, err = registry.Adapter("razorpay")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = registry.Adapter("paypal")
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)

	_, err = registry.Adapter("stripe")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var unset *Registry
	_, err = unset.Adapter("paypal")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestConfigsFromPayments(t *testing.T) {
	configs := ConfigsFromPayments(config.PaymentsConfig{
		LemonWebhookSecret: "lemon",
		PayPalWebhookID:    "WH-1",
		PayPalMode:         "live",
	})
	assert.Equal(t, "lemon", configs[ProviderLemonSqueezy].WebhookSecret)
	assert.NotContains(t, configs, ProviderRazorpay)
	assert.Equal(t, "WH-1", configs[ProviderPayPal].Settings["webhook_id"])
}

func TestVerifyHexHMAC(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := SignHexHMAC("secret", payload)

	assert.True(t, VerifyHexHMAC("secret", payload, sig))
	assert.True(t, VerifyHexHMAC("secret", payload, "sha256="+sig))
	assert.False(t, VerifyHexHMAC("other", payload, sig))
	assert.False(t, VerifyHexHMAC("secret", []byte(`{"a":2}`), sig))
	assert.False(t, VerifyHexHMAC("secret", payload, "zz"))
	assert.False(t, VerifyHexHMAC("secret", payload, ""))
}

func TestReadValue(t *testing.T) {
	fields := map[string]any{"s": " 15 ", "f": float64(5), "n": nil}
	assert.Equal(t, "15", ReadValue(fields, "s"))
	assert.Equal(t, "5", ReadValue(fields, "f"))
	assert.Equal(t, "", ReadValue(fields, "n"))
	assert.Equal(t, "", ReadValue(nil, "s"))
}
