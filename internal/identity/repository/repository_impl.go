package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/identity/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, identity *domain.Identity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO identities (
			id, fingerprint_hash, origin_hash, contact_address, balance, free_grant_used,
			reservation_state, reserved_at, released_at, completed_spend_count,
			created_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID,
		identity.FingerprintHash,
		identity.OriginHash,
		identity.ContactAddress,
		identity.Balance,
		identity.FreeGrantUsed,
		identity.ReservationState,
		identity.ReservedAt,
		identity.ReleasedAt,
		identity.CompletedSpendCount,
		identity.CreatedAt,
		identity.LastSeenAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Identity, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Identity, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) FindByFingerprintHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Identity, error) {
	return first(db.WithContext(ctx).
		Where("fingerprint_hash = ?", hash).
		Order("created_at desc"))
}

func (r *repo) FindLatestByOriginHash(ctx context.Context, db *gorm.DB, hash string, since *time.Time) (*domain.Identity, error) {
	stmt := db.WithContext(ctx).Where("origin_hash = ?", hash)
	if since != nil {
		stmt = stmt.Where("created_at >= ?", *since)
	}
	return first(stmt.Order("created_at desc"))
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, id uuid.UUID, seenAt time.Time, fingerprintHash *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE identities
		 SET last_seen_at = ?, fingerprint_hash = COALESCE(fingerprint_hash, ?)
		 WHERE id = ?`,
		seenAt,
		fingerprintHash,
		id,
	).Error
}

func (r *repo) UpdateBalanceState(ctx context.Context, db *gorm.DB, identity *domain.Identity) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE identities
		 SET balance = ?, reservation_state = ?, reserved_at = ?, released_at = ?,
			completed_spend_count = ?, last_seen_at = ?
		 WHERE id = ?`,
		identity.Balance,
		identity.ReservationState,
		identity.ReservedAt,
		identity.ReleasedAt,
		identity.CompletedSpendCount,
		identity.LastSeenAt,
		identity.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (r *repo) MarkFreeGrant(ctx context.Context, db *gorm.DB, id uuid.UUID, contact string, seenAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE identities
		 SET free_grant_used = ?, contact_address = ?, last_seen_at = ?
		 WHERE id = ? AND free_grant_used = ?`,
		true,
		contact,
		seenAt,
		id,
		false,
	).Error
}

func (r *repo) ContactInUse(ctx context.Context, db *gorm.DB, contact string, exclude uuid.UUID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Identity{}).
		Where("contact_address = ? AND id <> ?", contact, exclude).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountGrantedByOrigin(ctx context.Context, db *gorm.DB, originHash string, exclude uuid.UUID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Identity{}).
		Where("origin_hash = ? AND free_grant_used = ? AND id <> ?", originHash, true, exclude).
		Count(&count).Error
	return count, err
}

func first(stmt *gorm.DB) (*domain.Identity, error) {
	var identity domain.Identity
	err := stmt.Limit(1).Take(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
