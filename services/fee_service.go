package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkamau512/daktari_connect/models"
)

const (
	feeCacheTTL        = 10 * time.Minute
	unifiedHistoryKey  = "__unified__"
	defaultFeeFallback = 200.00
	defaultPlatformPct = 10.0
)

// FeeService resolves the applicable consultation fee per specialization.
// Lookups are cached in Redis and invalidated on write; every write appends
// an immutable history row.
type FeeService struct {
	db    *gorm.DB
	cache *redis.Client
}

func NewFeeService(db *gorm.DB, cache *redis.Client) *FeeService {
	return &FeeService{db: db, cache: cache}
}

func feeCacheKey(specialization string) string {
	return "fee:specialization:" + specialization
}

// GetApplicableFee returns the unified fee when the toggle is on, otherwise
// the specialization's configured fee, falling back to the system default.
func (s *FeeService) GetApplicableFee(ctx context.Context, specialization string) (float64, error) {
	unified, err := s.settingBool(ctx, models.SettingUnifiedFeeEnabled, false)
	if err != nil {
		return 0, err
	}
	if unified {
		return s.settingFloat(ctx, models.SettingUnifiedFeeAmount, defaultFeeFallback)
	}

	if s.cache != nil {
		if v, err := s.cache.Get(ctx, feeCacheKey(specialization)).Float64(); err == nil {
			return v, nil
		}
	}

	amount, err := s.lookupFee(ctx, specialization)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, feeCacheKey(specialization), amount, feeCacheTTL).Err(); err != nil {
			log.Printf("Failed to cache fee for %s: %v", specialization, err)
		}
	}
	return amount, nil
}

func (s *FeeService) lookupFee(ctx context.Context, specialization string) (float64, error) {
	var fc models.FeeConfiguration
	err := s.db.WithContext(ctx).
		Where("specialization = ? AND active = ?", specialization, true).
		First(&fc).Error
	if err == nil {
		return fc.Amount, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return s.settingFloat(ctx, models.SettingDefaultFee, defaultFeeFallback)
}

// SetFee upserts the specialization fee, appends a history row and drops the
// cache entry so the next read sees the new value.
func (s *FeeService) SetFee(ctx context.Context, specialization string, amount float64, actorID uuid.UUID, reason string) error {
	if specialization == "" {
		return fmt.Errorf("%w: specialization is required", ErrMissingField)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: fee must be positive", ErrInvalidAmount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FeeConfiguration
		var oldAmount *float64
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("specialization = ?", specialization).
			First(&existing).Error
		switch {
		case err == nil:
			old := existing.Amount
			oldAmount = &old
			existing.Amount = amount
			existing.Active = true
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.FeeConfiguration{
				ID:             uuid.New(),
				Specialization: specialization,
				Amount:         amount,
				Active:         true,
			}).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return tx.Create(&models.FeeChangeHistory{
			ID:             uuid.New(),
			Specialization: specialization,
			OldAmount:      oldAmount,
			NewAmount:      amount,
			ActorID:        actorID,
			Reason:         reason,
			CreatedAt:      time.Now(),
		}).Error
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, feeCacheKey(specialization)).Err(); err != nil {
			log.Printf("Failed to invalidate fee cache for %s: %v", specialization, err)
		}
	}
	return nil
}

// SetUnifiedFee flips the single-fee-for-everything toggle. Cached
// per-specialization entries can stay: the toggle is checked before the
// cache on every read.
func (s *FeeService) SetUnifiedFee(ctx context.Context, amount float64, enabled bool, actorID uuid.UUID, reason string) error {
	if enabled && amount <= 0 {
		return fmt.Errorf("%w: unified fee must be positive", ErrInvalidAmount)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSetting(tx, models.SettingUnifiedFeeEnabled, strconv.FormatBool(enabled)); err != nil {
			return err
		}
		if err := upsertSetting(tx, models.SettingUnifiedFeeAmount, strconv.FormatFloat(amount, 'f', 2, 64)); err != nil {
			return err
		}
		return tx.Create(&models.FeeChangeHistory{
			ID:             uuid.New(),
			Specialization: unifiedHistoryKey,
			NewAmount:      amount,
			ActorID:        actorID,
			Reason:         reason,
			CreatedAt:      time.Now(),
		}).Error
	})
}

// FeeHistory returns the append-only audit trail for one specialization.
func (s *FeeService) FeeHistory(ctx context.Context, specialization string) ([]models.FeeChangeHistory, error) {
	var history []models.FeeChangeHistory
	err := s.db.WithContext(ctx).
		Where("specialization = ?", specialization).
		Order("created_at DESC").
		Find(&history).Error
	return history, err
}

func (s *FeeService) PlatformFeePercent(ctx context.Context) (float64, error) {
	return s.settingFloat(ctx, models.SettingPlatformFeePercent, defaultPlatformPct)
}

// SettlementHold is how long doctor earnings stay in the pending bucket
// before the sweep moves them to available.
func (s *FeeService) SettlementHold(ctx context.Context) (time.Duration, error) {
	hours, err := s.settingFloat(ctx, models.SettingSettlementHoldHours, 48)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

func (s *FeeService) getSetting(ctx context.Context, key string) (string, bool, error) {
	var setting models.PlatformSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

func (s *FeeService) settingFloat(ctx context.Context, key string, fallback float64) (float64, error) {
	raw, ok, err := s.getSetting(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("🔥 Invalid numeric setting %s=%q, using fallback %0.2f", key, raw, fallback)
		return fallback, nil
	}
	return v, nil
}

func (s *FeeService) settingBool(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, ok, err := s.getSetting(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return fallback, nil
	}
	return raw == "true", nil
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.PlatformSetting{
		ID:        uuid.New(),
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}).Error
}
