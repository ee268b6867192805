package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkamau512/daktari_connect/models"
)

type GormPaymentStore struct {
	db *gorm.DB
}

func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

func (s *GormPaymentStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormPaymentStore) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "gateway_intent_id = ?", intentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormPaymentStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).First(&p, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// The unique index on idempotency_key serializes concurrent
		// requests; the loser of the race resolves to the winner's row.
		return ErrDuplicateKey
	}
	return err
}

func (s *GormPaymentStore) Transition(ctx context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if err := fn(&p); err != nil {
			if errors.Is(err, ErrUnchanged) {
				return nil
			}
			return err
		}
		return tx.Save(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormPaymentStore) StuckCouponPayments(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	var stuck []models.Payment
	err := s.db.WithContext(ctx).
		Where("method = ? AND status = ? AND created_at < ?",
			models.PaymentMethodCoupon, models.PaymentStatusPending, cutoff).
		Find(&stuck).Error
	return stuck, err
}

// SettleablePayments lists unsettled earnings past the hold cutoff. Refunded
// payments stay in the sweep: a partial refund only pulls back part of the
// doctor's share and the remainder still has to settle.
func (s *GormPaymentStore) SettleablePayments(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	var due []models.Payment
	err := s.db.WithContext(ctx).
		Where("status IN ? AND settled_at IS NULL AND doctor_id IS NOT NULL AND doctor_amount > 0 AND processed_at < ?",
			[]models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusRefunded}, cutoff).
		Find(&due).Error
	return due, err
}

func (s *GormPaymentStore) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Update("settled_at", at).Error
}
