package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type TransactionKind string

const (
	KindSpend   TransactionKind = "spend"
	KindRefund  TransactionKind = "refund"
	KindCommit  TransactionKind = "commit"
	KindGrant   TransactionKind = "grant"
	KindForfeit TransactionKind = "forfeit"
)

type SourceType string

const (
	SourceReservation SourceType = "reservation"
	SourceFreeGrant   SourceType = "free_grant"
	SourcePayment     SourceType = "payment"
)

// Transaction is one append-only journal row, written in the same database
// transaction as the balance change it describes.
type Transaction struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	IdentityID   uuid.UUID       `json:"identity_id" gorm:"type:char(36);not null;index"`
	Kind         TransactionKind `json:"kind" gorm:"size:16;not null"`
	Delta        int64           `json:"delta" gorm:"not null"`
	BalanceAfter int64           `json:"balance_after" gorm:"not null"`
	SourceType   SourceType      `json:"source_type" gorm:"size:32;not null"`
	SourceRef    string          `json:"source_ref" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "credit_transactions" }

// Source attributes a grant to its origin, e.g. a payment event.
type Source struct {
	Type SourceType
	Ref  string
}

// Balance is the caller-visible ledger state of one identity.
type Balance struct {
	IdentityID          uuid.UUID  `json:"identity_id"`
	Balance             int64      `json:"balance"`
	CompletedSpendCount int64      `json:"completed_spend_count"`
	Reserved            bool       `json:"reserved"`
	ReservedAt          *time.Time `json:"reserved_at,omitempty"`
}
