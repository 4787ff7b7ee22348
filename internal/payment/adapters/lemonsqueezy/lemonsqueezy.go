package lemonsqueezy

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
)

const (
	signatureHeader = "X-Signature"
	eventOrderPaid  = "order_created"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return adapters.ProviderLemonSqueezy
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Provider() string {
	return adapters.ProviderLemonSqueezy
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if !adapters.VerifyHexHMAC(a.webhookSecret, payload, headers.Get(signatureHeader)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type lemonEvent struct {
	Meta struct {
		EventName  string         `json:"event_name"`
		WebhookID  string         `json:"webhook_id"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		Attributes lemonAttributes `json:"attributes"`
	} `json:"data"`
}

type lemonAttributes struct {
	UserEmail      string      `json:"user_email"`
	Total          json.Number `json:"total"`
	Currency       string      `json:"currency"`
	Status         string      `json:"status"`
	CreatedAt      string      `json:"created_at"`
	FirstOrderItem struct {
		ProductName string `json:"product_name"`
	} `json:"first_order_item"`
}

// Parse maps order_created to a payment event. The identity reference and
// credit count come from the custom data attached at checkout.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event lemonEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Meta.EventName) != eventOrderPaid {
		return nil, paymentdomain.ErrEventIgnored
	}
	orderID := strings.TrimSpace(event.Data.ID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	attrs := event.Data.Attributes
	credits, _ := paymentdomain.ParseCredits(adapters.ReadValue(event.Meta.CustomData, "credits"))
	amount, _ := attrs.Total.Int64()
	currency := strings.ToUpper(strings.TrimSpace(attrs.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &paymentdomain.PaymentEvent{
		Provider:          adapters.ProviderLemonSqueezy,
		ProviderEventID:   strings.TrimSpace(event.Meta.WebhookID),
		ProviderPaymentID: orderID,
		EventType:         eventOrderPaid,
		IdentityRef:       adapters.ReadValue(event.Meta.CustomData, "device_id"),
		Credits:           credits,
		Amount:            amount,
		Currency:          currency,
		ContactAddress:    strings.TrimSpace(attrs.UserEmail),
		ProductName:       strings.TrimSpace(attrs.FirstOrderItem.ProductName),
		OccurredAt:        parseTime(attrs.CreatedAt),
		RawPayload:        payload,
	}, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
