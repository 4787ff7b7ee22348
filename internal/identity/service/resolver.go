package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/identity/domain"
	"github.com/smallbiznis/tryon/internal/identity/signal"
	"github.com/smallbiznis/tryon/internal/identity/token"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tryon/internal/observability/metrics"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Signer     *token.Signer
	Hasher     *signal.Hasher
	Clock      clock.Clock
	Policy     config.Policy
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Resolver struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	signer     *token.Signer
	hasher     *signal.Hasher
	clock      clock.Clock
	policy     config.IdentityPolicy
	obsMetrics *obsmetrics.Metrics
}

func NewResolver(p Params) domain.Resolver {
	return &Resolver{
		db:         p.DB,
		log:        p.Log.Named("identity.resolver"),
		repo:       p.Repo,
		signer:     p.Signer,
		hasher:     p.Hasher,
		clock:      p.Clock,
		policy:     p.Policy.Identity,
		obsMetrics: p.ObsMetrics,
	}
}

// Resolve tries the credential token, then the fingerprint hash, then the
// origin hash, and creates a new identity when none match. The first signal
// that matches wins.
func (r *Resolver) Resolve(ctx context.Context, signals domain.Signals) (res *domain.Resolution, err error) {
	ctx, span := tracing.Start(ctx, "identity.Resolve")
	defer func() {
		if res != nil {
			span.SetAttributes(attribute.String("source", string(res.Source)))
		}
		tracing.End(span, err)
	}()

	now := r.clock.Now()
	fingerprintHash := r.hasher.Ptr(signals.Fingerprint)
	originHash := r.hasher.Ptr(signals.Origin)

	identity, source, err := r.match(ctx, signals.CredentialToken, fingerprintHash, originHash, now)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("resolve identity: %w", err))
	}
	if identity != nil {
		// Only a verified credential may bind a fingerprint. An origin match is
		// a guess and must not become a permanent binding.
		var backfill *string
		if source == domain.SourceToken {
			backfill = fingerprintHash
		}
		if err := r.repo.Touch(ctx, r.db, identity.ID, now, backfill); err != nil {
			return nil, db.Classify(fmt.Errorf("touch identity: %w", err))
		}
		identity.LastSeenAt = now
		if identity.FingerprintHash == nil {
			identity.FingerprintHash = backfill
		}
		r.obsMetrics.RecordIdentityResolution(ctx, string(source))
		return &domain.Resolution{Identity: identity, Source: source}, nil
	}

	created, issued, expiresAt, err := r.create(ctx, fingerprintHash, originHash, now)
	if err != nil {
		return nil, err
	}
	r.obsMetrics.RecordIdentityResolution(ctx, string(domain.SourceCreated))
	logger.WithContext(ctx, r.log).Info("identity created",
		zap.String("identity_id", created.ID.String()),
		zap.Bool("has_fingerprint", fingerprintHash != nil),
		zap.Bool("has_origin", originHash != nil),
	)
	return &domain.Resolution{
		Identity:       created,
		Source:         domain.SourceCreated,
		IssuedToken:    issued,
		TokenExpiresAt: expiresAt,
	}, nil
}

func (r *Resolver) match(ctx context.Context, credential string, fingerprintHash, originHash *string, now time.Time) (*domain.Identity, domain.Source, error) {
	if credential = strings.TrimSpace(credential); credential != "" {
		identity, err := r.byToken(ctx, r.db, credential)
		switch {
		case err == nil:
			return identity, domain.SourceToken, nil
		case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrIdentityNotFound):
			logger.WithContext(ctx, r.log).Debug("credential token not usable, falling back", zap.Error(err))
		default:
			return nil, "", err
		}
	}

	if fingerprintHash != nil {
		identity, err := r.repo.FindByFingerprintHash(ctx, r.db, *fingerprintHash)
		if err != nil || identity != nil {
			return identity, domain.SourceFingerprint, err
		}
	}

	if originHash != nil {
		var since *time.Time
		if r.policy.OriginMatchWindow > 0 {
			cutoff := now.Add(-r.policy.OriginMatchWindow)
			since = &cutoff
		}
		identity, err := r.repo.FindLatestByOriginHash(ctx, r.db, *originHash, since)
		if err != nil || identity != nil {
			return identity, domain.SourceOrigin, err
		}
	}
	return nil, "", nil
}

func (r *Resolver) create(ctx context.Context, fingerprintHash, originHash *string, now time.Time) (*domain.Identity, string, time.Time, error) {
	identity := &domain.Identity{
		ID:               uuid.New(),
		FingerprintHash:  fingerprintHash,
		OriginHash:       originHash,
		ReservationState: domain.ReservationIdle,
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	issued, expiresAt, err := r.signer.Issue(identity.ID.String())
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("issue credential: %w", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.repo.Insert(ctx, tx, identity)
	})
	if err != nil {
		return nil, "", time.Time{}, db.Classify(fmt.Errorf("create identity: %w", err))
	}
	return identity, issued, expiresAt, nil
}

func (r *Resolver) Get(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	identity, err := r.repo.FindByID(ctx, r.db, id)
	if err != nil {
		return nil, db.Classify(err)
	}
	if identity == nil {
		return nil, domain.ErrIdentityNotFound
	}
	return identity, nil
}

// Reissue mints a fresh credential for an identity that already exists.
func (r *Resolver) Reissue(ctx context.Context, id uuid.UUID) (string, time.Time, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return "", time.Time{}, err
	}
	return r.signer.Issue(id.String())
}

func (r *Resolver) FindByReference(ctx context.Context, tx *gorm.DB, ref string) (*domain.Identity, domain.ReferenceKind, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, "", domain.ErrInvalidReference
	case isUUID(ref):
		id, _ := uuid.Parse(ref)
		identity, err := r.repo.FindByID(ctx, tx, id)
		return found(identity, domain.ReferenceID, err)
	case token.LooksLikeToken(ref):
		identity, err := r.byToken(ctx, tx, ref)
		if errors.Is(err, domain.ErrTokenInvalid) || errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ReferenceToken, domain.ErrInvalidReference
		}
		return identity, domain.ReferenceToken, err
	case signal.IsHash(strings.ToLower(ref)):
		identity, err := r.repo.FindByFingerprintHash(ctx, tx, strings.ToLower(ref))
		return found(identity, domain.ReferenceFingerprint, err)
	default:
		return nil, "", domain.ErrInvalidReference
	}
}

func (r *Resolver) byToken(ctx context.Context, tx *gorm.DB, credential string) (*domain.Identity, error) {
	claims, err := r.signer.Verify(credential)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	identity, err := r.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func found(identity *domain.Identity, kind domain.ReferenceKind, err error) (*domain.Identity, domain.ReferenceKind, error) {
	if err != nil {
		return nil, kind, err
	}
	if identity == nil {
		return nil, kind, domain.ErrIdentityNotFound
	}
	return identity, kind, nil
}

// isUUID accepts only the canonical 36-character form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
