package identity

import (
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/identity/keyring"
	"github.com/smallbiznis/tryon/internal/identity/repository"
	"github.com/smallbiznis/tryon/internal/identity/service"
	"github.com/smallbiznis/tryon/internal/identity/signal"
	"github.com/smallbiznis/tryon/internal/identity/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity",
	fx.Provide(
		provideKeyring,
		provideSigner,
		provideHasher,
		repository.Provide,
		service.NewResolver,
	),
)

func provideKeyring(cfg config.Config, log *zap.Logger) (keyring.Keyring, error) {
	if cfg.Identity.Secret == "" && !cfg.IsProduction() {
		log.Warn("IDENTITY_SECRET not set, using an ephemeral key; tokens will not survive a restart")
		return keyring.Ephemeral()
	}
	return keyring.New(cfg.Identity.Secret)
}

func provideSigner(keys keyring.Keyring, cfg config.Config, clk clock.Clock) *token.Signer {
	return token.NewSigner(keys.Credential, cfg.Identity.TokenTTL, clk)
}

func provideHasher(keys keyring.Keyring) *signal.Hasher {
	return signal.NewHasher(keys.Signal)
}
