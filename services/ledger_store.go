package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkamau512/daktari_connect/models"
)

type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Get(ctx context.Context, doctorID uuid.UUID) (*models.BalanceLedger, error) {
	var l models.BalanceLedger
	err := s.db.WithContext(ctx).First(&l, "doctor_id = ?", doctorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Mutate applies fn to the doctor's ledger row under a write lock, creating
// the row lazily on first credit. Two concurrent first-credits race on the
// unique doctor_id index; the loser retries against the winner's row.
func (s *GormLedgerStore) Mutate(ctx context.Context, doctorID uuid.UUID, fn func(l *models.BalanceLedger) error) (*models.BalanceLedger, error) {
	var result *models.BalanceLedger
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		var l models.BalanceLedger
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&l, "doctor_id = ?", doctorID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				l = models.BalanceLedger{ID: uuid.New(), DoctorID: doctorID}
				if err := fn(&l); err != nil {
					return err
				}
				return tx.Create(&l).Error
			}
			if err != nil {
				return err
			}
			if err := fn(&l); err != nil {
				return err
			}
			return tx.Save(&l).Error
		})
		if errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			continue
		}
		if lastErr != nil {
			return nil, lastErr
		}
		result = &l
		return result, nil
	}
	return nil, lastErr
}
