package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PaymentMethodCard   = "card"
	PaymentMethodCoupon = "coupon"
)

// Payment is one row per attempted charge. Rows are never deleted; every
// refund, retry and webhook leaves its trace here.
type Payment struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PatientID      uuid.UUID     `gorm:"type:uuid;not null;index"`
	DoctorID       *uuid.UUID    `gorm:"type:uuid;index"`
	ConsultationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Amount         float64       `gorm:"type:numeric(12,2);not null"`
	Currency       string        `gorm:"size:3;not null;default:'USD'"`
	PlatformFee    float64       `gorm:"type:numeric(12,2);not null"`
	DoctorAmount   float64       `gorm:"type:numeric(12,2);not null"`
	Status         PaymentStatus `gorm:"size:20;not null"`
	Method         string        `gorm:"size:30;not null"`

	// IdempotencyKey is derived from business keys, never wall-clock alone,
	// so retried client requests collapse onto this row.
	IdempotencyKey  string  `gorm:"size:128;not null;uniqueIndex"`
	GatewayIntentID *string `gorm:"size:255;uniqueIndex"`
	GatewayChargeID *string `gorm:"size:255"`

	GatewayFee    float64  `gorm:"type:numeric(12,2);not null;default:0"`
	NetAmount     float64  `gorm:"type:numeric(12,2);not null;default:0"`
	RefundAmount  *float64 `gorm:"type:numeric(12,2)"`
	RefundFee     *float64 `gorm:"type:numeric(12,2)"`
	FailureReason *string  `gorm:"type:text"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
	SettledAt   *time.Time
	RefundedAt  *time.Time
}

func (Payment) TableName() string { return "payments" }
