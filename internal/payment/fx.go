package payment

import (
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/payment/adapters"
	"github.com/smallbiznis/tryon/internal/payment/adapters/lemonsqueezy"
	"github.com/smallbiznis/tryon/internal/payment/adapters/paypal"
	"github.com/smallbiznis/tryon/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/tryon/internal/payment/checkout"
	"github.com/smallbiznis/tryon/internal/payment/repository"
	paymentservice "github.com/smallbiznis/tryon/internal/payment/service"
	"github.com/smallbiznis/tryon/internal/payment/webhook"
	paypalapi "github.com/smallbiznis/tryon/internal/providers/paypal"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, client *paypalapi.Client) *adapters.Registry {
		var verifier paypal.Verifier
		if client.Configured() {
			verifier = client
		}
		return adapters.NewRegistry(
			adapters.ConfigsFromPayments(cfg.Payments),
			lemonsqueezy.NewFactory(),
			razorpay.NewFactory(),
			paypal.NewFactory(verifier),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)
