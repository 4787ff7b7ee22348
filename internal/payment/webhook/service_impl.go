package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Adapters   *adapters.Registry
	Reconciler paymentdomain.Reconciler
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	adapters   *adapters.Registry
	reconciler paymentdomain.Reconciler
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		adapters:   p.Adapters,
		reconciler: p.Reconciler,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest authenticates a raw delivery, classifies it and hands actionable
// events to the reconciler. Nothing is written before the signature passes.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Status, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return "", err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			log.Warn("payment webhook rejected: invalid signature")
			s.obsMetrics.RecordPaymentEvent(ctx, provider, "invalid_signature")
		}
		return "", err
	}
	if !json.Valid(payload) {
		return "", paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		log.Debug("payment webhook ignored: event type not actionable")
		s.obsMetrics.RecordPaymentEvent(ctx, provider, string(paymentdomain.StatusIgnored))
		return paymentdomain.StatusIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	event.Provider = provider

	return s.reconciler.Apply(ctx, event)
}
