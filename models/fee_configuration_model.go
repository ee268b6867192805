package models

import (
	"time"

	"github.com/google/uuid"
)

// FeeConfiguration holds the active consultation fee for one specialization.
// Changes never overwrite history; every write appends a FeeChangeHistory row.
type FeeConfiguration struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Specialization string    `gorm:"size:100;not null;uniqueIndex"`
	Amount         float64   `gorm:"type:numeric(12,2);not null"`
	Active         bool      `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FeeConfiguration) TableName() string { return "fee_configurations" }

// FeeChangeHistory is append-only. Reads never need it; audits do.
type FeeChangeHistory struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Specialization string    `gorm:"size:100;not null;index"`
	OldAmount      *float64  `gorm:"type:numeric(12,2)"`
	NewAmount      float64   `gorm:"type:numeric(12,2);not null"`
	ActorID        uuid.UUID `gorm:"type:uuid;not null"`
	Reason         string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (FeeChangeHistory) TableName() string { return "fee_change_histories" }

// PlatformSetting is the mutable key/value settings store (platform fee
// percentage, unified fee, settlement hold, trial period).
type PlatformSetting struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Key       string    `gorm:"size:100;not null;uniqueIndex"`
	Value     string    `gorm:"size:255;not null"`
	UpdatedAt time.Time
}

func (PlatformSetting) TableName() string { return "platform_settings" }

// Well-known setting keys seeded at startup.
const (
	SettingPlatformFeePercent  = "platform_fee_percent"
	SettingDefaultFee          = "default_consultation_fee"
	SettingUnifiedFeeEnabled   = "unified_fee_enabled"
	SettingUnifiedFeeAmount    = "unified_fee_amount"
	SettingSettlementHoldHours = "settlement_hold_hours"
	SettingTrialPeriodDays     = "trial_period_days"
)
