package domain

import (
	"context"
	"net/http"
)

// Adapter verifies and parses one provider's webhook deliveries.
type Adapter interface {
	Provider() string
	// Verify authenticates the raw body. A delivery that fails authentication
	// is ErrInvalidSignature; other errors mean verification could not run.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse returns ErrEventIgnored for events that do not grant credits.
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterConfig carries the credentials of one provider.
type AdapterConfig struct {
	WebhookSecret string
	// Provider specific settings, e.g. PayPal API credentials.
	Settings map[string]string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
