package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventRecord is one reconciled payment. (provider, provider_payment_id) is
// the idempotency key: a payment is credited at most once.
type EventRecord struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider          string         `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_payment_events_provider_payment,priority:1"`
	ProviderPaymentID string         `json:"provider_payment_id" gorm:"size:255;not null;uniqueIndex:ux_payment_events_provider_payment,priority:2"`
	ProviderEventID   string         `json:"provider_event_id" gorm:"type:text"`
	EventType         string         `json:"event_type" gorm:"type:text;not null"`
	IdentityID        uuid.UUID      `json:"identity_id" gorm:"type:char(36);not null;index"`
	ReferenceKind     string         `json:"reference_kind" gorm:"size:32;not null"`
	CreditsGranted    int64          `json:"credits_granted" gorm:"not null"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:text"`
	ContactAddress    *string        `json:"-" gorm:"size:254"`
	ProductName       string         `json:"product_name" gorm:"type:text"`
	CorrelationID     string         `json:"correlation_id" gorm:"type:text"`
	Payload           datatypes.JSON `json:"-" gorm:"not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Status is the terminal state of one delivery.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
)

// PaymentEvent is the provider-neutral event produced by an adapter.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	EventType         string
	// IdentityRef is the opaque reference embedded at checkout: an identity
	// id, a credential token or a fingerprint hash.
	IdentityRef    string
	Credits        int64
	Amount         int64
	Currency       string
	ContactAddress string
	ProductName    string
	OccurredAt     time.Time
	RawPayload     []byte
}
