package providers

import (
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/providers/paypal"
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(func(cfg config.Config) *paypal.Client {
		p := cfg.Payments
		return paypal.NewClient(paypal.BaseURL(p.PayPalMode), p.PayPalClientID, p.PayPalClientSecret, nil)
	}),
	fx.Provide(synthesis.NewClient),
)
