package domain

import (
	"context"
	"net/http"
)

// Reconciler applies verified payment events to the credit ledger.
type Reconciler interface {
	Apply(ctx context.Context, event *PaymentEvent) (Status, error)
}

// WebhookService authenticates raw deliveries and hands them to the Reconciler.
type WebhookService interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (Status, error)
}
