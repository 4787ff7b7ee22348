// Package checkout creates hosted payment links whose custom data carries
// the identity reference and credit count the webhook adapters read back.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	paypalapi "github.com/smallbiznis/tryon/internal/providers/paypal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Link is a hosted checkout the client should open.
type Link struct {
	Provider string `json:"provider"`
	Pack     string `json:"pack"`
	Credits  int    `json:"credits"`
	URL      string `json:"payment_url"`
}

// creator talks to one provider's checkout API.
type creator interface {
	configured() bool
	create(ctx context.Context, pack config.Pack, price config.PackPrice, ref string) (string, error)
}

type Service struct {
	log      *zap.Logger
	packs    *config.PackCatalog
	creators map[string]creator
}

func newService(log *zap.Logger, packs *config.PackCatalog, creators map[string]creator) *Service {
	return &Service{log: log.Named("payment.checkout"), packs: packs, creators: creators}
}

func (s *Service) CreateLink(ctx context.Context, provider, packCode string, identityID uuid.UUID) (link Link, err error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	ctx, span := tracing.Start(ctx, "payment.checkout", attribute.String("provider", provider))
	defer func() {
		tracing.End(span, err, paymentdomain.ErrInvalidPack, paymentdomain.ErrProviderNotConfigured, paymentdomain.ErrProviderNotFound)
	}()

	c, ok := s.creators[provider]
	if !ok {
		return Link{}, paymentdomain.ErrProviderNotFound
	}
	if !c.configured() {
		return Link{}, paymentdomain.ErrProviderNotConfigured
	}
	pack, ok := s.packs.Lookup(packCode)
	if !ok {
		return Link{}, paymentdomain.ErrInvalidPack
	}
	price, ok := pack.Prices[provider]
	if !ok {
		return Link{}, paymentdomain.ErrInvalidPack
	}

	url, err := c.create(ctx, pack, price, identityID.String())
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("checkout creation failed",
			zap.String("provider", provider),
			zap.String("pack", pack.Code),
			zap.Error(err),
		)
		return Link{}, err
	}
	return Link{Provider: provider, Pack: pack.Code, Credits: pack.Credits, URL: url}, nil
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", paymentdomain.ErrCheckoutFailed, fmt.Sprintf(format, args...))
}

type Params struct {
	fx.In

	Config config.Config
	Packs  *config.PackCatalog
	Log    *zap.Logger
	PayPal *paypalapi.Client
}

func NewService(p Params) *Service {
	pay := p.Config.Payments
	return newService(p.Log, p.Packs, map[string]creator{
		adapters.ProviderLemonSqueezy: newLemonClient(lemonAPIBase, pay.LemonAPIKey, pay.LemonStoreID, pay.ReturnURL, nil),
		adapters.ProviderRazorpay:     newRazorpayClient(razorpayAPIBase, pay.RazorpayKeyID, pay.RazorpayKeySecret, pay.ReturnURL, nil),
		adapters.ProviderPayPal:       &paypalCreator{api: p.PayPal, returnURL: strings.TrimSpace(pay.ReturnURL)},
	})
}
