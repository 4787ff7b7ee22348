// Package domain contains the append-only record of metered try-on attempts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// UsageRecord is written once per spend attempt and never updated.
type UsageRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	IdentityID  uuid.UUID    `json:"identity_id" gorm:"type:char(36);not null;index"`
	ResourceRef string       `json:"resource_ref" gorm:"type:text;not null"`
	Outcome     Outcome      `json:"outcome" gorm:"size:16;not null"`
	ResultRef   string       `json:"result_ref,omitempty" gorm:"type:text"`
	ErrorCode   string       `json:"error_code,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;index"`
}

func (UsageRecord) TableName() string { return "usage_records" }
