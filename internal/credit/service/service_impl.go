package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// expectedErrors are rejections, not failures, for tracing purposes.
var expectedErrors = []error{
	domain.ErrInsufficientCredit,
	domain.ErrCooldown,
	domain.ErrAlreadyPending,
	domain.ErrNoPendingSpend,
	domain.ErrRefundWindowExpired,
	domain.ErrInvalidAmount,
	identitydomain.ErrIdentityNotFound,
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       config.Policy
	Repo         domain.Repository
	IdentityRepo identitydomain.Repository
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       config.CreditPolicy
	repo         domain.Repository
	identityRepo identitydomain.Repository
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("credit.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy.Credit,
		repo:         p.Repo,
		identityRepo: p.IdentityRepo,
		obsMetrics:   p.ObsMetrics,
	}
}

// mutation validates and applies a change to a locked identity. It returns
// the journal rows to append; a nil slice means the identity is unchanged.
type mutation func(identity *identitydomain.Identity, now time.Time) ([]pendingEntry, error)

type pendingEntry struct {
	kind   domain.TransactionKind
	delta  int64
	source domain.Source
}

// Spend reserves one credit. An expired reservation is forfeited first: its
// credit is not returned.
func (s *Service) Spend(ctx context.Context, identityID uuid.UUID) (domain.Balance, error) {
	return s.run(ctx, "spend", identityID, func(identity *identitydomain.Identity, now time.Time) ([]pendingEntry, error) {
		var entries []pendingEntry
		if identity.Reserved() {
			if now.Sub(*identity.ReservedAt) < s.policy.RefundWindow {
				return nil, domain.ErrAlreadyPending
			}
			releasedAt := identity.ReservedAt.Add(s.policy.RefundWindow)
			identity.ReservationState = identitydomain.ReservationIdle
			identity.ReservedAt = nil
			identity.ReleasedAt = &releasedAt
			entries = append(entries, pendingEntry{kind: domain.KindForfeit, source: reservation()})
		}

		if identity.Balance < 1 {
			return nil, domain.ErrInsufficientCredit
		}
		if identity.ReleasedAt != nil {
			if elapsed := now.Sub(*identity.ReleasedAt); elapsed < s.policy.Cooldown {
				return nil, &domain.CooldownError{RetryAfter: s.policy.Cooldown - elapsed}
			}
		}

		reservedAt := now
		identity.Balance--
		identity.ReservationState = identitydomain.ReservationReserved
		identity.ReservedAt = &reservedAt
		return append(entries, pendingEntry{kind: domain.KindSpend, delta: -1, source: reservation()}), nil
	})
}

// Refund returns the reserved credit while the reservation is younger than
// the refund window.
func (s *Service) Refund(ctx context.Context, identityID uuid.UUID) (domain.Balance, error) {
	return s.run(ctx, "refund", identityID, func(identity *identitydomain.Identity, now time.Time) ([]pendingEntry, error) {
		if !identity.Reserved() {
			return nil, domain.ErrNoPendingSpend
		}
		if now.Sub(*identity.ReservedAt) >= s.policy.RefundWindow {
			return nil, domain.ErrRefundWindowExpired
		}
		identity.Balance++
		release(identity, now)
		return []pendingEntry{{kind: domain.KindRefund, delta: 1, source: reservation()}}, nil
	})
}

// Commit finalizes the reservation. It succeeds even after the refund window
// has passed: the work finished late but did finish.
func (s *Service) Commit(ctx context.Context, identityID uuid.UUID) (domain.Balance, error) {
	return s.run(ctx, "commit", identityID, func(identity *identitydomain.Identity, now time.Time) ([]pendingEntry, error) {
		if !identity.Reserved() {
			return nil, domain.ErrNoPendingSpend
		}
		identity.CompletedSpendCount++
		release(identity, now)
		return []pendingEntry{{kind: domain.KindCommit, source: reservation()}}, nil
	})
}

func (s *Service) Grant(ctx context.Context, identityID uuid.UUID, amount int64, source domain.Source) (domain.Balance, error) {
	return s.run(ctx, "grant", identityID, grant(amount, source))
}

func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, identityID uuid.UUID, amount int64, source domain.Source) (domain.Balance, error) {
	balance, err := s.apply(ctx, tx, identityID, grant(amount, source))
	s.record(ctx, "grant", err)
	return balance, err
}

func grant(amount int64, source domain.Source) mutation {
	return func(identity *identitydomain.Identity, _ time.Time) ([]pendingEntry, error) {
		if amount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		identity.Balance += amount
		return []pendingEntry{{kind: domain.KindGrant, delta: amount, source: source}}, nil
	}
}

func (s *Service) Balance(ctx context.Context, identityID uuid.UUID) (domain.Balance, error) {
	identity, err := s.identityRepo.FindByID(ctx, s.db, identityID)
	if err != nil {
		return domain.Balance{}, db.Classify(err)
	}
	if identity == nil {
		return domain.Balance{}, identitydomain.ErrIdentityNotFound
	}
	return toBalance(identity), nil
}

func (s *Service) History(ctx context.Context, identityID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	items, err := s.repo.ListTransactions(ctx, s.db, identityID, limit)
	return items, db.Classify(err)
}

func (s *Service) run(ctx context.Context, operation string, identityID uuid.UUID, fn mutation) (balance domain.Balance, err error) {
	ctx, span := tracing.Start(ctx, "credit."+operation)
	defer func() { tracing.End(span, err, expectedErrors...) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = s.apply(ctx, tx, identityID, fn)
		return txErr
	})
	s.record(ctx, operation, err)
	if err != nil {
		return domain.Balance{}, db.Classify(err)
	}
	return balance, nil
}

// apply runs fn against the locked identity row inside tx.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, identityID uuid.UUID, fn mutation) (domain.Balance, error) {
	identity, err := s.identityRepo.FindByIDForUpdate(ctx, tx, identityID)
	if err != nil {
		return domain.Balance{}, err
	}
	if identity == nil {
		return domain.Balance{}, identitydomain.ErrIdentityNotFound
	}

	now := s.clock.Now()
	entries, err := fn(identity, now)
	if err != nil {
		return domain.Balance{}, err
	}
	if identity.Balance < 0 {
		return domain.Balance{}, fmt.Errorf("balance would become negative: %w", domain.ErrInsufficientCredit)
	}

	identity.LastSeenAt = now
	if err := s.identityRepo.UpdateBalanceState(ctx, tx, identity); err != nil {
		return domain.Balance{}, err
	}
	for _, entry := range entries {
		txn := &domain.Transaction{
			ID:           s.genID.Generate(),
			IdentityID:   identity.ID,
			Kind:         entry.kind,
			Delta:        entry.delta,
			BalanceAfter: identity.Balance,
			SourceType:   entry.source.Type,
			SourceRef:    entry.source.Ref,
			CreatedAt:    now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return domain.Balance{}, err
		}
		if entry.kind == domain.KindForfeit {
			logger.WithContext(ctx, s.log).Info("expired reservation forfeited",
				zap.String("identity_id", identity.ID.String()))
		}
	}
	return toBalance(identity), nil
}

func (s *Service) record(ctx context.Context, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		for _, expected := range expectedErrors {
			if errors.Is(err, expected) {
				outcome = expected.Error()
				break
			}
		}
	}
	s.obsMetrics.RecordCreditOperation(ctx, operation, outcome)
}

func release(identity *identitydomain.Identity, now time.Time) {
	releasedAt := now
	identity.ReservationState = identitydomain.ReservationIdle
	identity.ReservedAt = nil
	identity.ReleasedAt = &releasedAt
}

func reservation() domain.Source {
	return domain.Source{Type: domain.SourceReservation}
}

func toBalance(identity *identitydomain.Identity) domain.Balance {
	return domain.Balance{
		IdentityID:          identity.ID,
		Balance:             identity.Balance,
		CompletedSpendCount: identity.CompletedSpendCount,
		Reserved:            identity.Reserved(),
		ReservedAt:          identity.ReservedAt,
	}
}
