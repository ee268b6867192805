package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"
)

const (
	RefundTypeFull       = "full"
	RefundTypePartial    = "partial"
	RefundTypeNoShow     = "no_show"
	RefundTypeIncomplete = "incomplete_consultation"
)

// RefundRecord is one row per refund attempt, linked to exactly one Payment.
// Failed attempts are kept; the sum of completed amounts for a payment never
// exceeds the original charge.
type RefundRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PaymentID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Amount          float64   `gorm:"type:numeric(12,2);not null"`
	Fee             float64   `gorm:"type:numeric(12,2);not null;default:0"`
	Reason          string    `gorm:"type:text;not null"`
	Type            string    `gorm:"size:40;not null"`
	InitiatorID     uuid.UUID `gorm:"type:uuid;not null"`
	Status          string    `gorm:"size:20;not null;default:'pending'"`
	GatewayRefundID *string   `gorm:"size:255"`
	ErrorMessage    *string   `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RefundRecord) TableName() string { return "refund_records" }
