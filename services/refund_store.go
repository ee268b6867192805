package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mkamau512/daktari_connect/models"
)

type GormRefundStore struct {
	db *gorm.DB
}

func NewGormRefundStore(db *gorm.DB) *GormRefundStore {
	return &GormRefundStore{db: db}
}

func (s *GormRefundStore) Create(ctx context.Context, r *models.RefundRecord) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormRefundStore) Update(ctx context.Context, r *models.RefundRecord) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *GormRefundStore) CompletedTotalForPayment(ctx context.Context, paymentID uuid.UUID) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&models.RefundRecord{}).
		Where("payment_id = ? AND status = ?", paymentID, models.RefundStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
