package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	paypalapi "github.com/smallbiznis/tryon/internal/providers/paypal"
)

const eventSaleCompleted = "PAYMENT.SALE.COMPLETED"

// Verifier is the PayPal API call that authenticates a webhook delivery.
type Verifier interface {
	VerifyWebhookSignature(ctx context.Context, req paypalapi.VerifyRequest) (bool, error)
}

type Factory struct {
	verifier Verifier
}

// NewFactory shares one API client (and its cached OAuth token) across
// adapters. A nil verifier makes the factory build one from the settings.
func NewFactory(verifier Verifier) *Factory {
	return &Factory{verifier: verifier}
}

func (f *Factory) Provider() string {
	return adapters.ProviderPayPal
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	webhookID := strings.TrimSpace(cfg.Settings["webhook_id"])
	if webhookID == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	verifier := f.verifier
	if verifier == nil {
		client := paypalapi.NewClient(
			paypalapi.BaseURL(cfg.Settings["mode"]),
			cfg.Settings["client_id"],
			cfg.Settings["client_secret"],
			nil,
		)
		if !client.Configured() {
			return nil, paymentdomain.ErrInvalidConfig
		}
		verifier = client
	}
	return &Adapter{webhookID: webhookID, verifier: verifier}, nil
}

type Adapter struct {
	webhookID string
	verifier  Verifier
}

func (a *Adapter) Provider() string {
	return adapters.ProviderPayPal
}

// Verify asks PayPal to check the transmission signature. PayPal signs with
// a certificate chain, so the check is delegated rather than done locally.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	req := paypalapi.VerifyRequest{
		AuthAlgo:         headers.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          headers.Get("PAYPAL-CERT-URL"),
		TransmissionID:   headers.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: headers.Get("PAYPAL-TRANSMISSION-TIME"),
		WebhookID:        a.webhookID,
		WebhookEvent:     json.RawMessage(payload),
	}
	if req.TransmissionID == "" || req.TransmissionSig == "" || req.CertURL == "" || !json.Valid(payload) {
		return paymentdomain.ErrInvalidSignature
	}

	ok, err := a.verifier.VerifyWebhookSignature(ctx, req)
	if err != nil {
		return fmt.Errorf("paypal signature verification: %w", err)
	}
	if !ok {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type paypalEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID            string `json:"id"`
		ParentPayment string `json:"parent_payment"`
		Custom        string `json:"custom"`
		State         string `json:"state"`
		Amount        struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
	} `json:"resource"`
}

// Parse maps PAYMENT.SALE.COMPLETED to a payment event. The transaction's
// custom field was set at checkout as "<identity ref>:<credits>".
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventType) != eventSaleCompleted {
		return nil, paymentdomain.ErrEventIgnored
	}
	saleID := strings.TrimSpace(event.Resource.ID)
	if saleID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	ref, credits := SplitCustom(event.Resource.Custom)
	amount, err := paymentdomain.ParseMinorUnits(event.Resource.Amount.Total)
	if err != nil {
		amount = 0
	}

	var occurredAt time.Time
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(event.CreateTime)); err == nil {
		occurredAt = t.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          adapters.ProviderPayPal,
		ProviderEventID:   strings.TrimSpace(event.ID),
		ProviderPaymentID: saleID,
		EventType:         eventSaleCompleted,
		IdentityRef:       ref,
		Credits:           credits,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(event.Resource.Amount.Currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

// SplitCustom parses "<ref>:<credits>". A malformed value yields zero credits.
func SplitCustom(custom string) (string, int64) {
	custom = strings.TrimSpace(custom)
	idx := strings.LastIndex(custom, ":")
	if idx <= 0 {
		return custom, 0
	}
	credits, ok := paymentdomain.ParseCredits(custom[idx+1:])
	if !ok {
		return custom[:idx], 0
	}
	return custom[:idx], credits
}

// JoinCustom is the inverse of SplitCustom, used when creating checkouts.
func JoinCustom(ref string, credits int64) string {
	return fmt.Sprintf("%s:%d", ref, credits)
}
