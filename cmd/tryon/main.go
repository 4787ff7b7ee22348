package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tryon/internal/abuse"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/credit"
	"github.com/smallbiznis/tryon/internal/identity"
	"github.com/smallbiznis/tryon/internal/migration"
	"github.com/smallbiznis/tryon/internal/observability"
	"github.com/smallbiznis/tryon/internal/payment"
	"github.com/smallbiznis/tryon/internal/providers"
	"github.com/smallbiznis/tryon/internal/ratelimit"
	"github.com/smallbiznis/tryon/internal/server"
	"github.com/smallbiznis/tryon/internal/tryon"
	"github.com/smallbiznis/tryon/internal/usage"
	"github.com/smallbiznis/tryon/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,

		// Domains
		identity.Module,
		credit.Module,
		abuse.Module,
		usage.Module,
		payment.Module,
		tryon.Module,

		server.Module,
	)
	app.Run()
}

// RegisterSnowflake reads SNOWFLAKE_NODE so replicas mint disjoint ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
