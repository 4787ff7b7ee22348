package adapters

import (
	"strings"

	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/payment/domain"
)

const (
	ProviderLemonSqueezy = "lemonsqueezy"
	ProviderRazorpay     = "razorpay"
	ProviderPayPal       = "paypal"
)

// Registry builds the webhook adapter for a provider from its factory and
// the credentials configured at startup.
type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig
}

func NewRegistry(configs map[string]domain.AdapterConfig, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	for provider, cfg := range configs {
		registry.configs[normalize(provider)] = cfg
	}
	return registry
}

// Adapter returns ErrProviderNotFound for unknown providers and
// ErrProviderNotConfigured when the provider has no credentials.
func (r *Registry) Adapter(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, domain.ErrProviderNotConfigured
	}
	return factory.NewAdapter(cfg)
}

// ConfigsFromPayments maps env credentials to adapter configs. Providers
// without a webhook secret (or webhook id for PayPal) are left out.
func ConfigsFromPayments(cfg config.PaymentsConfig) map[string]domain.AdapterConfig {
	out := map[string]domain.AdapterConfig{}
	if cfg.LemonWebhookSecret != "" {
		out[ProviderLemonSqueezy] = domain.AdapterConfig{WebhookSecret: cfg.LemonWebhookSecret}
	}
	if cfg.RazorpayWebhookSecret != "" {
		out[ProviderRazorpay] = domain.AdapterConfig{WebhookSecret: cfg.RazorpayWebhookSecret}
	}
	if cfg.PayPalWebhookID != "" {
		out[ProviderPayPal] = domain.AdapterConfig{
			Settings: map[string]string{
				"webhook_id":    cfg.PayPalWebhookID,
				"mode":          cfg.PayPalMode,
				"client_id":     cfg.PayPalClientID,
				"client_secret": cfg.PayPalClientSecret,
			},
		}
	}
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
