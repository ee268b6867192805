package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/models"
)

func newCouponFixture() (*CouponService, *fakePaymentStore, *fakeLedgerStore, *mockCouponClient, *recordingPublisher) {
	store := newFakePaymentStore()
	ledger := newFakeLedgerStore()
	client := &mockCouponClient{}
	events := &recordingPublisher{}
	svc := NewCouponService(store, ledger, staticFees{fee: 200.00, pct: 10}, client, events)
	return svc, store, ledger, client, events
}

func couponInput(code string) CouponPaymentInput {
	doctorID := uuid.New()
	return CouponPaymentInput{
		PatientID:       uuid.New(),
		DoctorID:        &doctorID,
		ConsultationID:  uuid.New(),
		Specialization:  "cardiology",
		CouponCode:      code,
		BeneficiaryType: "patient",
		BeneficiaryID:   uuid.New(),
	}
}

func TestCouponPaymentHappyPath(t *testing.T) {
	svc, _, ledger, client, events := newCouponFixture()
	in := couponInput("SAVE50")

	client.On("ValidateCoupon", mock.Anything, mock.MatchedBy(func(req coupons.ValidateRequest) bool {
		return req.Code == "SAVE50" && req.RequestedAmount == 200.00
	})).Return(&coupons.ValidationResult{
		Valid:          true,
		CouponID:       "cpn_1",
		DiscountAmount: 50.00,
		DiscountType:   "fixed",
	}, nil).Once()
	client.On("MarkCouponUsed", mock.Anything, "SAVE50", mock.MatchedBy(func(u coupons.Usage) bool {
		return u.DiscountApplied == 50.00 && u.AmountCharged == 150.00
	})).Return(&coupons.MarkUsedResult{Success: true}, nil).Once()

	p, err := svc.ProcessCouponPayment(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, models.PaymentMethodCoupon, p.Method)
	assert.Equal(t, 150.00, p.Amount)
	assert.Equal(t, 15.00, p.PlatformFee)
	assert.Equal(t, 135.00, p.DoctorAmount)
	assert.Equal(t, 135.00, p.NetAmount)
	assert.Equal(t, 50.00, p.Metadata["discount_amount"])
	require.NotNil(t, p.ProcessedAt)

	l, err := ledger.Get(context.Background(), *in.DoctorID)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 135.00, l.PendingBalance)

	assert.Len(t, events.completed, 1)
	client.AssertExpectations(t)
}

func TestCouponCoversFullFee(t *testing.T) {
	svc, _, ledger, client, _ := newCouponFixture()
	in := couponInput("FREE100")

	client.On("ValidateCoupon", mock.Anything, mock.Anything).Return(&coupons.ValidationResult{
		Valid:          true,
		CouponID:       "cpn_2",
		DiscountAmount: 250.00, // discount is clamped at the fee
		DiscountType:   "fixed",
	}, nil).Once()
	client.On("MarkCouponUsed", mock.Anything, "FREE100", mock.Anything).
		Return(&coupons.MarkUsedResult{Success: true}, nil).Once()

	p, err := svc.ProcessCouponPayment(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0.0, p.Amount)
	assert.Equal(t, 0.0, p.PlatformFee)
	assert.Equal(t, 0.0, p.DoctorAmount)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)

	// A zero-amount payment never touches the ledger.
	l, err := ledger.Get(context.Background(), *in.DoctorID)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestCouponValidationRejection(t *testing.T) {
	svc, store, _, client, _ := newCouponFixture()
	in := couponInput("EXPIRED1")

	client.On("ValidateCoupon", mock.Anything, mock.Anything).
		Return(nil, &coupons.RejectionError{Code: coupons.CodeExpired, Message: "coupon expired"}).Once()

	_, err := svc.ProcessCouponPayment(context.Background(), in)
	require.Error(t, err)

	var rejection *coupons.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, coupons.CodeExpired, rejection.Code)

	// Nothing was reserved.
	assert.Empty(t, store.payments)
	client.AssertNotCalled(t, "MarkCouponUsed", mock.Anything, mock.Anything, mock.Anything)
}

func TestCouponMarkUsedFailureCompensates(t *testing.T) {
	svc, store, ledger, client, events := newCouponFixture()
	in := couponInput("RACE1")

	client.On("ValidateCoupon", mock.Anything, mock.Anything).Return(&coupons.ValidationResult{
		Valid:          true,
		CouponID:       "cpn_3",
		DiscountAmount: 50.00,
	}, nil).Once()
	client.On("MarkCouponUsed", mock.Anything, "RACE1", mock.Anything).
		Return(nil, &coupons.RejectionError{Code: coupons.CodeAlreadyUsed, Message: "already used"}).Once()

	_, err := svc.ProcessCouponPayment(context.Background(), in)
	require.Error(t, err)

	// The reservation was released, not deleted.
	require.Len(t, store.payments, 1)
	for _, p := range store.payments {
		assert.Equal(t, models.PaymentStatusFailed, p.Status)
		require.NotNil(t, p.FailureReason)
	}

	l, lerr := ledger.Get(context.Background(), *in.DoctorID)
	require.NoError(t, lerr)
	assert.Nil(t, l)
	assert.Len(t, events.failed, 1)
}

func TestDuplicateCouponSubmission(t *testing.T) {
	svc, store, _, client, _ := newCouponFixture()
	in := couponInput("DOUBLE1")

	client.On("ValidateCoupon", mock.Anything, mock.Anything).Return(&coupons.ValidationResult{
		Valid:          true,
		CouponID:       "cpn_4",
		DiscountAmount: 50.00,
	}, nil).Twice()
	client.On("MarkCouponUsed", mock.Anything, "DOUBLE1", mock.Anything).
		Return(&coupons.MarkUsedResult{Success: true}, nil).Once()

	_, err := svc.ProcessCouponPayment(context.Background(), in)
	require.NoError(t, err)

	// Same patient, consultation and coupon inside the key bucket: the
	// second submission cannot reserve a second payment.
	_, err = svc.ProcessCouponPayment(context.Background(), in)
	assert.ErrorIs(t, err, ErrDuplicateCoupon)
	assert.Len(t, store.payments, 1)
}

func TestReconcileStuckCompletesConsumedCoupon(t *testing.T) {
	svc, store, ledger, client, events := newCouponFixture()
	doctorID := uuid.New()

	stuck := &models.Payment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       &doctorID,
		ConsultationID: uuid.New(),
		Amount:         150.00,
		Currency:       "USD",
		PlatformFee:    15.00,
		DoctorAmount:   135.00,
		Status:         models.PaymentStatusPending,
		Method:         models.PaymentMethodCoupon,
		IdempotencyKey: "stuck-key",
		Metadata:       datatypes.JSONMap{"coupon_code": "STUCK1"},
		CreatedAt:      time.Now().Add(-15 * time.Minute),
	}
	require.NoError(t, store.Create(context.Background(), stuck))

	client.On("GetCouponUsage", mock.Anything, "STUCK1").Return(&coupons.UsageState{
		Code:      "STUCK1",
		Status:    "USED",
		Used:      true,
		PaymentID: stuck.ID.String(),
	}, nil).Once()

	svc.ReconcileStuck(context.Background(), 10*time.Minute, 30*time.Minute)

	resolved, err := store.FindByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, resolved.Status)

	l, err := ledger.Get(context.Background(), doctorID)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 135.00, l.PendingBalance)
	assert.Len(t, events.completed, 1)
}

func TestReconcileStuckExpiresUnconfirmedReservation(t *testing.T) {
	svc, store, _, client, events := newCouponFixture()

	stuck := &models.Payment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ConsultationID: uuid.New(),
		Amount:         150.00,
		Status:         models.PaymentStatusPending,
		Method:         models.PaymentMethodCoupon,
		IdempotencyKey: "expired-key",
		Metadata:       datatypes.JSONMap{"coupon_code": "GONE1"},
		CreatedAt:      time.Now().Add(-45 * time.Minute),
	}
	require.NoError(t, store.Create(context.Background(), stuck))

	client.On("GetCouponUsage", mock.Anything, "GONE1").Return(&coupons.UsageState{
		Code:   "GONE1",
		Status: "DISTRIBUTED",
		Used:   false,
	}, nil).Once()

	svc.ReconcileStuck(context.Background(), 10*time.Minute, 30*time.Minute)

	resolved, err := store.FindByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, resolved.Status)
	assert.Len(t, events.failed, 1)
}

func TestReconcileStuckWaitsInsideGracePeriod(t *testing.T) {
	svc, store, _, client, _ := newCouponFixture()

	stuck := &models.Payment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ConsultationID: uuid.New(),
		Amount:         150.00,
		Status:         models.PaymentStatusPending,
		Method:         models.PaymentMethodCoupon,
		IdempotencyKey: "young-key",
		Metadata:       datatypes.JSONMap{"coupon_code": "YOUNG1"},
		CreatedAt:      time.Now().Add(-15 * time.Minute),
	}
	require.NoError(t, store.Create(context.Background(), stuck))

	client.On("GetCouponUsage", mock.Anything, "YOUNG1").Return(&coupons.UsageState{
		Code:   "YOUNG1",
		Status: "DISTRIBUTED",
		Used:   false,
	}, nil).Once()

	svc.ReconcileStuck(context.Background(), 10*time.Minute, 30*time.Minute)

	resolved, err := store.FindByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, resolved.Status)
}
