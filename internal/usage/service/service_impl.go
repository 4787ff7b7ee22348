package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/usage/domain"
	"github.com/smallbiznis/tryon/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const maxListLimit = 100

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.UsageRecord, error) {
	if req.IdentityID == uuid.Nil {
		return nil, domain.ErrInvalidRecord
	}
	switch req.Outcome {
	case domain.OutcomeSuccess, domain.OutcomeFailed:
	default:
		return nil, domain.ErrInvalidRecord
	}

	record := &domain.UsageRecord{
		ID:          s.genID.Generate(),
		IdentityID:  req.IdentityID,
		ResourceRef: strings.TrimSpace(req.ResourceRef),
		Outcome:     req.Outcome,
		ResultRef:   strings.TrimSpace(req.ResultRef),
		ErrorCode:   strings.TrimSpace(req.ErrorCode),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, db.Classify(err)
	}
	return record, nil
}

func (s *Service) ListByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	records, err := s.repo.ListByIdentity(ctx, s.db, identityID, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	return records, nil
}
