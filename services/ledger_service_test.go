package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/payments"
)

func newLedgerFixture() (*LedgerService, *fakePaymentStore, *fakeLedgerStore, *mockGateway, *recordingPublisher) {
	paymentStore := newFakePaymentStore()
	ledgerStore := newFakeLedgerStore()
	gateway := &mockGateway{}
	events := &recordingPublisher{}
	svc := NewLedgerService(ledgerStore, paymentStore, gateway, events)
	return svc, paymentStore, ledgerStore, gateway, events
}

func fundDoctor(t *testing.T, store *fakeLedgerStore, doctorID uuid.UUID, available float64, accountID string) {
	t.Helper()
	_, err := store.Mutate(context.Background(), doctorID, func(l *models.BalanceLedger) error {
		if err := l.CreditPending(available); err != nil {
			return err
		}
		if err := l.SettlePendingToAvailable(available); err != nil {
			return err
		}
		if accountID != "" {
			id := accountID
			l.GatewayAccountID = &id
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGetBalanceForUnknownDoctor(t *testing.T) {
	svc, _, _, _, _ := newLedgerFixture()
	doctorID := uuid.New()

	l, err := svc.GetBalance(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, doctorID, l.DoctorID)
	assert.Equal(t, 0.0, l.AvailableBalance)
	assert.Equal(t, 0.0, l.PendingBalance)
}

func TestWithdrawHappyPath(t *testing.T) {
	svc, _, ledgerStore, gateway, events := newLedgerFixture()
	doctorID := uuid.New()
	fundDoctor(t, ledgerStore, doctorID, 300.00, "acct_1")

	gateway.On("Transfer", mock.Anything, 200.00, "acct_1", mock.Anything).
		Return(&payments.TransferResult{ID: "tr_1", Amount: 200.00}, nil).Once()

	l, err := svc.Withdraw(context.Background(), doctorID, 200.00)
	require.NoError(t, err)

	assert.Equal(t, 100.00, l.AvailableBalance)
	assert.Equal(t, 200.00, l.TotalWithdrawn)
	require.NotNil(t, l.LastWithdrawalAt)
	assert.Equal(t, 1, events.payouts)
	gateway.AssertExpectations(t)
}

func TestWithdrawValidations(t *testing.T) {
	svc, _, ledgerStore, gateway, _ := newLedgerFixture()
	doctorID := uuid.New()
	fundDoctor(t, ledgerStore, doctorID, 300.00, "acct_1")

	_, err := svc.Withdraw(context.Background(), doctorID, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Withdraw(context.Background(), doctorID, 20.00)
	assert.ErrorIs(t, err, models.ErrBelowMinimumPayout)

	_, err = svc.Withdraw(context.Background(), doctorID, 500.00)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	_, err = svc.Withdraw(context.Background(), uuid.New(), 100.00)
	assert.ErrorIs(t, err, ErrLedgerNotFound)

	gateway.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawRequiresPayoutAccount(t *testing.T) {
	svc, _, ledgerStore, _, _ := newLedgerFixture()
	doctorID := uuid.New()
	fundDoctor(t, ledgerStore, doctorID, 300.00, "")

	_, err := svc.Withdraw(context.Background(), doctorID, 100.00)
	assert.ErrorIs(t, err, ErrPayoutAccountMissing)
}

func TestWithdrawWhenPayoutsDisabled(t *testing.T) {
	svc, _, ledgerStore, _, _ := newLedgerFixture()
	doctorID := uuid.New()
	fundDoctor(t, ledgerStore, doctorID, 300.00, "acct_1")
	_, err := ledgerStore.Mutate(context.Background(), doctorID, func(l *models.BalanceLedger) error {
		l.PayoutEnabled = false
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Withdraw(context.Background(), doctorID, 100.00)
	assert.ErrorIs(t, err, models.ErrPayoutDisabled)
}

func TestCanWithdraw(t *testing.T) {
	svc, _, ledgerStore, _, _ := newLedgerFixture()
	doctorID := uuid.New()

	ok, err := svc.CanWithdraw(context.Background(), doctorID)
	require.NoError(t, err)
	assert.False(t, ok)

	fundDoctor(t, ledgerStore, doctorID, 300.00, "acct_1")
	ok, err = svc.CanWithdraw(context.Background(), doctorID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSettleDueMovesAgedEarnings(t *testing.T) {
	svc, paymentStore, ledgerStore, _, _ := newLedgerFixture()
	doctorID := uuid.New()

	// Earnings land in pending on completion.
	_, err := ledgerStore.Mutate(context.Background(), doctorID, func(l *models.BalanceLedger) error {
		return l.CreditPending(180.00)
	})
	require.NoError(t, err)

	aged := time.Now().Add(-72 * time.Hour)
	p := &models.Payment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       &doctorID,
		ConsultationID: uuid.New(),
		Amount:         200.00,
		PlatformFee:    20.00,
		DoctorAmount:   180.00,
		Status:         models.PaymentStatusCompleted,
		IdempotencyKey: uuid.NewString(),
		ProcessedAt:    &aged,
		CreatedAt:      aged,
	}
	require.NoError(t, paymentStore.Create(context.Background(), p))

	settled, err := svc.SettleDue(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	l, err := ledgerStore.Get(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, l.PendingBalance)
	assert.Equal(t, 180.00, l.AvailableBalance)

	stored, err := paymentStore.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SettledAt)

	// A second sweep finds nothing.
	settled, err = svc.SettleDue(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
}

func TestSettleDueRespectsHoldWindow(t *testing.T) {
	svc, paymentStore, ledgerStore, _, _ := newLedgerFixture()
	doctorID := uuid.New()

	_, err := ledgerStore.Mutate(context.Background(), doctorID, func(l *models.BalanceLedger) error {
		return l.CreditPending(180.00)
	})
	require.NoError(t, err)

	recent := time.Now().Add(-2 * time.Hour)
	p := &models.Payment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       &doctorID,
		ConsultationID: uuid.New(),
		Amount:         200.00,
		DoctorAmount:   180.00,
		Status:         models.PaymentStatusCompleted,
		IdempotencyKey: uuid.NewString(),
		ProcessedAt:    &recent,
		CreatedAt:      recent,
	}
	require.NoError(t, paymentStore.Create(context.Background(), p))

	settled, err := svc.SettleDue(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	l, err := ledgerStore.Get(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, 180.00, l.PendingBalance)
}
