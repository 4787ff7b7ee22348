package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	abusedomain "github.com/smallbiznis/tryon/internal/abuse/domain"
	"github.com/smallbiznis/tryon/internal/config"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	"github.com/smallbiznis/tryon/internal/observability"
	obsmiddleware "github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/smallbiznis/tryon/internal/tryon"
	usagedomain "github.com/smallbiznis/tryon/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// The client address feeds identity resolution and the free-grant origin
	// limits, so forwarding headers count only from configured proxies.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics != nil {
		r.GET("/metrics", httpMetrics.Handler())
	}

	return r, nil
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type tryOnRunner interface {
	Run(ctx context.Context, identityID uuid.UUID, personImage []byte, garmentURL string) (tryon.Result, error)
}

type checkoutLinker interface {
	CreateLink(ctx context.Context, provider, packCode string, identityID uuid.UUID) (checkout.Link, error)
}

type Server struct {
	engine        *gin.Engine
	resolver      identitydomain.Resolver
	ledger        creditdomain.Service
	abuse         abusedomain.Service
	usage         usagedomain.Service
	tryOn         tryOnRunner
	checkout      checkoutLinker
	webhooks      paymentdomain.WebhookService
	packs         *config.PackCatalog
	maxImageBytes int64
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Resolver identitydomain.Resolver
	Ledger   creditdomain.Service
	Abuse    abusedomain.Service
	Usage    usagedomain.Service
	TryOn    *tryon.Service
	Checkout *checkout.Service
	Webhooks paymentdomain.WebhookService
	Packs    *config.PackCatalog
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		resolver:      p.Resolver,
		ledger:        p.Ledger,
		abuse:         p.Abuse,
		usage:         p.Usage,
		tryOn:         p.TryOn,
		checkout:      p.Checkout,
		webhooks:      p.Webhooks,
		packs:         p.Packs,
		maxImageBytes: p.Cfg.Synthesis.MaxImageBytes,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	// Provider callbacks and the pack list carry no device credentials.
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
	s.engine.GET("/packs", s.ListPacks)

	device := s.engine.Group("", s.ResolveIdentity())
	{
		device.GET("/device/init", s.InitDevice)
		device.POST("/device/token", s.ReissueToken)

		device.GET("/credits", s.GetCredits)
		device.GET("/credits/history", s.GetCreditHistory)
		device.POST("/credits/reserve", s.ReserveCredit)
		device.POST("/credits/commit", s.CommitCredit)
		device.POST("/credits/refund", s.RefundCredit)
		device.POST("/free/unlock", s.UnlockFree)

		device.POST("/tryon", s.TryOn)
		device.GET("/usage", s.ListUsage)

		device.POST("/checkout/:provider", s.CreateCheckout)
	}
}
