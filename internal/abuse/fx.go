package abuse

import (
	"github.com/smallbiznis/tryon/internal/abuse/guard"
	"github.com/smallbiznis/tryon/internal/abuse/service"
	"github.com/smallbiznis/tryon/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("abuse",
	fx.Provide(
		func(policy config.Policy) *guard.Guard {
			return guard.New(policy.Abuse.OriginGrantThreshold)
		},
		service.NewService,
	),
)
