package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/smallbiznis/tryon/internal/ratelimit"
	"github.com/smallbiznis/tryon/pkg/db"
	"github.com/smallbiznis/tryon/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errLostInsertRace rolls back a grant whose event row lost the idempotency
// race to a concurrent delivery.
var errLostInsertRace = errors.New("payment event inserted concurrently")

var expectedErrors = []error{
	paymentdomain.ErrUnresolvedIdentity,
	paymentdomain.ErrEventInFlight,
	paymentdomain.ErrInvalidEvent,
}

// InFlightLock collapses concurrent redeliveries of one payment.
type InFlightLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       config.Policy
	Repo         paymentdomain.Repository
	Resolver     identitydomain.Resolver
	IdentityRepo identitydomain.Repository
	Ledger       creditdomain.Service
	Locker       *ratelimit.Locker   `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       config.PaymentPolicy
	repo         paymentdomain.Repository
	resolver     identitydomain.Resolver
	identityRepo identitydomain.Repository
	ledger       creditdomain.Service
	lock         InFlightLock
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Reconciler {
	svc := &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.reconciler"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy.Payment,
		repo:         p.Repo,
		resolver:     p.Resolver,
		identityRepo: p.IdentityRepo,
		ledger:       p.Ledger,
		obsMetrics:   p.ObsMetrics,
	}
	if p.Locker != nil {
		svc.lock = p.Locker
	}
	return svc
}

// WithLock swaps the in-flight lock; tests use it to inject a fake.
func (s *Service) WithLock(lock InFlightLock) *Service {
	s.lock = lock
	return s
}

// Apply credits a verified payment at most once per (provider, payment id).
// The duplicate check, identity resolution, grant and event insert share one
// transaction.
func (s *Service) Apply(ctx context.Context, event *paymentdomain.PaymentEvent) (status paymentdomain.Status, err error) {
	if event == nil {
		return "", paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	event.ProviderPaymentID = strings.TrimSpace(event.ProviderPaymentID)
	event.IdentityRef = strings.TrimSpace(event.IdentityRef)

	ctx, span := tracing.Start(ctx, "payment.apply",
		attribute.String("provider", event.Provider),
		attribute.String("provider_payment_id", event.ProviderPaymentID),
	)
	defer func() {
		tracing.End(span, err, expectedErrors...)
		s.record(ctx, event.Provider, status, err)
	}()

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", event.Provider),
		zap.String("provider_payment_id", event.ProviderPaymentID),
	)

	if event.Provider == "" || event.ProviderPaymentID == "" {
		return "", paymentdomain.ErrInvalidEvent
	}
	if event.IdentityRef == "" || event.Credits <= 0 {
		log.Info("payment event ignored: missing identity reference or credits",
			zap.Bool("has_reference", event.IdentityRef != ""),
			zap.Int64("credits", event.Credits),
		)
		return paymentdomain.StatusIgnored, nil
	}

	release, err := s.acquire(ctx, event, log)
	if err != nil {
		return "", err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindEvent(ctx, tx, event.Provider, event.ProviderPaymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			status = paymentdomain.StatusDuplicate
			return nil
		}

		identity, kind, err := s.resolve(ctx, tx, event.IdentityRef)
		if err != nil {
			return err
		}

		balance, err := s.ledger.GrantTx(ctx, tx, identity.ID, event.Credits, creditdomain.Source{
			Type: creditdomain.SourcePayment,
			Ref:  event.Provider + ":" + event.ProviderPaymentID,
		})
		if err != nil {
			return err
		}

		inserted, err := s.repo.InsertEvent(ctx, tx, s.newRecord(ctx, event, identity.ID, kind))
		if err != nil {
			return err
		}
		if !inserted {
			return errLostInsertRace
		}

		status = paymentdomain.StatusApplied
		log.Info("payment applied",
			zap.String("identity_id", identity.ID.String()),
			zap.String("reference_kind", string(kind)),
			zap.Int64("credits", event.Credits),
			zap.Int64("balance", balance.Balance),
		)
		return nil
	})
	if errors.Is(err, errLostInsertRace) || db.IsDuplicateKeyErr(err) {
		return paymentdomain.StatusDuplicate, nil
	}
	if err != nil {
		return "", db.Classify(err)
	}
	return status, nil
}

// resolve applies the unresolved-identity policy on top of the resolver.
func (s *Service) resolve(ctx context.Context, tx *gorm.DB, ref string) (*identitydomain.Identity, identitydomain.ReferenceKind, error) {
	identity, kind, err := s.resolver.FindByReference(ctx, tx, ref)
	if err == nil {
		return identity, kind, nil
	}
	if !errors.Is(err, identitydomain.ErrIdentityNotFound) && !errors.Is(err, identitydomain.ErrInvalidReference) {
		return nil, kind, err
	}

	if s.policy.UnresolvedIdentity == config.UnresolvedIdentityMaterialize && kind == identitydomain.ReferenceID && errors.Is(err, identitydomain.ErrIdentityNotFound) {
		id, parseErr := uuid.Parse(ref)
		if parseErr != nil {
			return nil, kind, fmt.Errorf("%w: %v", paymentdomain.ErrUnresolvedIdentity, parseErr)
		}
		now := s.clock.Now()
		placeholder := &identitydomain.Identity{
			ID:               id,
			ReservationState: identitydomain.ReservationIdle,
			CreatedAt:        now,
			LastSeenAt:       now,
		}
		if err := s.identityRepo.Insert(ctx, tx, placeholder); err != nil {
			return nil, kind, err
		}
		logger.WithContext(ctx, s.log).Warn("placeholder identity materialized for payment",
			zap.String("identity_id", id.String()))
		return placeholder, kind, nil
	}

	return nil, kind, fmt.Errorf("%w: %s reference", paymentdomain.ErrUnresolvedIdentity, kindLabel(kind))
}

func (s *Service) newRecord(ctx context.Context, event *paymentdomain.PaymentEvent, identityID uuid.UUID, kind identitydomain.ReferenceKind) *paymentdomain.EventRecord {
	var contact *string
	if event.ContactAddress != "" {
		value := strings.ToLower(event.ContactAddress)
		contact = &value
	}
	payload := event.RawPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return &paymentdomain.EventRecord{
		ID:                s.genID.Generate(),
		Provider:          event.Provider,
		ProviderPaymentID: event.ProviderPaymentID,
		ProviderEventID:   event.ProviderEventID,
		EventType:         event.EventType,
		IdentityID:        identityID,
		ReferenceKind:     string(kind),
		CreditsGranted:    event.Credits,
		Amount:            event.Amount,
		Currency:          event.Currency,
		ContactAddress:    contact,
		ProductName:       event.ProductName,
		CorrelationID:     correlation.ExtractCorrelationID(ctx),
		Payload:           datatypes.JSON(payload),
		ReceivedAt:        s.clock.Now(),
	}
}

// acquire takes the optional redis lock. A redis outage degrades to the
// database constraint alone.
func (s *Service) acquire(ctx context.Context, event *paymentdomain.PaymentEvent, log *zap.Logger) (func(), error) {
	noop := func() {}
	if s.lock == nil || s.policy.InFlightLockTTL <= 0 {
		return noop, nil
	}
	key := "payment:" + event.Provider + ":" + event.ProviderPaymentID
	token, ok, err := s.lock.TryLock(ctx, key, s.policy.InFlightLockTTL)
	if err != nil {
		log.Warn("payment lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, paymentdomain.ErrEventInFlight
	}
	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("payment lock release failed", zap.Error(err))
		}
	}, nil
}

func (s *Service) record(ctx context.Context, provider string, status paymentdomain.Status, err error) {
	label := string(status)
	switch {
	case errors.Is(err, paymentdomain.ErrUnresolvedIdentity):
		label = "unresolved"
	case errors.Is(err, paymentdomain.ErrEventInFlight):
		label = "in_flight"
	case err != nil:
		label = "error"
	}
	s.obsMetrics.RecordPaymentEvent(ctx, provider, label)
}

func kindLabel(kind identitydomain.ReferenceKind) string {
	if kind == "" {
		return "unrecognized"
	}
	return string(kind)
}
