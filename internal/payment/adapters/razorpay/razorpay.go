package razorpay

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
	signatureHeader      = "X-Razorpay-Signature"
	eventPaymentLinkPaid = "payment_link.paid"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return adapters.ProviderRazorpay
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
	return adapters.ProviderRazorpay
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if !adapters.VerifyHexHMAC(a.webhookSecret, payload, headers.Get(signatureHeader)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type razorpayEvent struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		PaymentLink struct {
			Entity struct {
				ID    string         `json:"id"`
				Notes map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID          string         `json:"id"`
				Amount      int64          `json:"amount"`
				Currency    string         `json:"currency"`
				Email       string         `json:"email"`
				Description string         `json:"description"`
				Notes       map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Parse maps payment_link.paid to a payment event. The notes set on the
// payment link carry the identity reference and credit count.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event razorpayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Event) != eventPaymentLinkPaid {
		return nil, paymentdomain.ErrEventIgnored
	}

	link := event.Payload.PaymentLink.Entity
	payment := event.Payload.Payment.Entity
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	notes := link.Notes
	if len(notes) == 0 {
		notes = payment.Notes
	}
	credits, _ := paymentdomain.ParseCredits(adapters.ReadValue(notes, "credits"))

	var occurredAt time.Time
	if event.CreatedAt > 0 {
		occurredAt = time.Unix(event.CreatedAt, 0).UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          adapters.ProviderRazorpay,
		ProviderEventID:   strings.TrimSpace(link.ID),
		ProviderPaymentID: paymentID,
		EventType:         eventPaymentLinkPaid,
		IdentityRef:       adapters.ReadValue(notes, "device_id"),
		Credits:           credits,
		Amount:            payment.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(payment.Currency)),
		ContactAddress:    strings.TrimSpace(payment.Email),
		ProductName:       strings.TrimSpace(payment.Description),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}
