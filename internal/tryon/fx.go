package tryon

import (
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
	"go.uber.org/fx"
)

var Module = fx.Module("tryon.service",
	fx.Provide(func(c *synthesis.Client) Synthesizer { return c }),
	fx.Provide(NewService),
)
