package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/abuse/domain"
	"github.com/smallbiznis/tryon/internal/abuse/guard"
	"github.com/smallbiznis/tryon/internal/clock"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/internal/ratelimit"
	"github.com/smallbiznis/tryon/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const freeGrantCredits = 1

var expectedErrors = []error{
	domain.ErrAlreadyGranted,
	domain.ErrContactAlreadyUsed,
	domain.ErrOriginRateLimited,
	domain.ErrInvalidContact,
	identitydomain.ErrIdentityNotFound,
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Guard         *guard.Guard
	IdentityRepo  identitydomain.Repository
	Ledger        creditdomain.Service
	OriginLimiter ratelimit.OriginLimiter
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	guard         *guard.Guard
	identityRepo  identitydomain.Repository
	ledger        creditdomain.Service
	originLimiter ratelimit.OriginLimiter
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("abuse.service"),
		clock:         p.Clock,
		guard:         p.Guard,
		identityRepo:  p.IdentityRepo,
		ledger:        p.Ledger,
		originLimiter: p.OriginLimiter,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) GrantFree(ctx context.Context, identityID uuid.UUID, rawContact string) (balance creditdomain.Balance, err error) {
	ctx, span := tracing.Start(ctx, "abuse.grant_free")
	defer func() { tracing.End(span, err, expectedErrors...) }()

	contact, err := guard.NormalizeContact(rawContact)
	if err != nil {
		return creditdomain.Balance{}, err
	}

	current, err := s.identityRepo.FindByID(ctx, s.db, identityID)
	if err != nil {
		return creditdomain.Balance{}, db.Classify(err)
	}
	if current == nil {
		return creditdomain.Balance{}, identitydomain.ErrIdentityNotFound
	}
	if err := s.throttle(ctx, current); err != nil {
		return creditdomain.Balance{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		identity, err := s.identityRepo.FindByIDForUpdate(ctx, tx, identityID)
		if err != nil {
			return err
		}
		if identity == nil {
			return identitydomain.ErrIdentityNotFound
		}
		if err := s.guard.CheckFreeEligible(ctx, txLookup{tx: tx, repo: s.identityRepo}, identity, contact); err != nil {
			return err
		}

		balance, err = s.ledger.GrantTx(ctx, tx, identityID, freeGrantCredits, creditdomain.Source{Type: creditdomain.SourceFreeGrant})
		if err != nil {
			return err
		}
		return s.identityRepo.MarkFreeGrant(ctx, tx, identityID, contact, s.clock.Now())
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// lost the race for the contact against another identity
			return creditdomain.Balance{}, domain.ErrContactAlreadyUsed
		}
		if errors.Is(err, domain.ErrOriginRateLimited) {
			s.obsMetrics.RecordRateLimitDenied(ctx, "origin_grant_threshold")
		}
		return creditdomain.Balance{}, db.Classify(err)
	}

	logger.WithContext(ctx, s.log).Info("free credit granted",
		zap.String("identity_id", identityID.String()),
		zap.Int64("balance", balance.Balance),
	)
	return balance, nil
}

// throttle limits grant attempts per origin before any lock is taken. A
// limiter outage fails open: the threshold check in the guard still applies.
func (s *Service) throttle(ctx context.Context, identity *identitydomain.Identity) error {
	if s.originLimiter == nil || identity.OriginHash == nil {
		return nil
	}
	decision, err := s.originLimiter.Allow(ctx, *identity.OriginHash)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("origin limiter unavailable", zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		s.obsMetrics.RecordRateLimitDenied(ctx, "origin_attempts")
		return &domain.RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

type txLookup struct {
	tx   *gorm.DB
	repo identitydomain.Repository
}

func (l txLookup) ContactInUse(ctx context.Context, contact string, exclude uuid.UUID) (bool, error) {
	return l.repo.ContactInUse(ctx, l.tx, contact, exclude)
}

func (l txLookup) CountGrantedByOrigin(ctx context.Context, originHash string, exclude uuid.UUID) (int64, error) {
	return l.repo.CountGrantedByOrigin(ctx, l.tx, originHash, exclude)
}
