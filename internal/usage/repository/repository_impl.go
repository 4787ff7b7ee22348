package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (id, identity_id, resource_ref, outcome, result_ref, error_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.IdentityID,
		record.ResourceRef,
		record.Outcome,
		record.ResultRef,
		record.ErrorCode,
		record.CreatedAt,
	).Error
}

func (r *repo) ListByIdentity(ctx context.Context, db *gorm.DB, identityID uuid.UUID, limit int) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	err := db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
