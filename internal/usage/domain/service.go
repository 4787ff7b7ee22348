package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidRecord = errors.New("invalid_usage_record")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	ListByIdentity(ctx context.Context, db *gorm.DB, identityID uuid.UUID, limit int) ([]UsageRecord, error)
}

type RecordRequest struct {
	IdentityID  uuid.UUID
	ResourceRef string
	Outcome     Outcome
	ResultRef   string
	ErrorCode   string
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*UsageRecord, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]UsageRecord, error)
}
