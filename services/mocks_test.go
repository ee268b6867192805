package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/payments"
)

// fakePaymentStore mirrors the GORM store's contract in memory, including
// the unique idempotency key and ErrUnchanged handling.
type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[uuid.UUID]*models.Payment)}
}

func copyPayment(p *models.Payment) *models.Payment {
	clone := *p
	return &clone
}

func (s *fakePaymentStore) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (s *fakePaymentStore) FindByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.GatewayIntentID != nil && *p.GatewayIntentID == intentID {
			return copyPayment(p), nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *fakePaymentStore) FindByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.IdempotencyKey == key {
			return copyPayment(p), nil
		}
	}
	return nil, nil
}

func (s *fakePaymentStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return ErrDuplicateKey
		}
	}
	s.payments[p.ID] = copyPayment(p)
	return nil
}

func (s *fakePaymentStore) Transition(_ context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	work := copyPayment(p)
	if err := fn(work); err != nil {
		if err == ErrUnchanged {
			return copyPayment(p), nil
		}
		return nil, err
	}
	s.payments[id] = work
	return copyPayment(work), nil
}

func (s *fakePaymentStore) StuckCouponPayments(_ context.Context, cutoff time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []models.Payment
	for _, p := range s.payments {
		if p.Method == models.PaymentMethodCoupon && p.Status == models.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			stuck = append(stuck, *p)
		}
	}
	return stuck, nil
}

func (s *fakePaymentStore) SettleablePayments(_ context.Context, cutoff time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Payment
	for _, p := range s.payments {
		if (p.Status == models.PaymentStatusCompleted || p.Status == models.PaymentStatusRefunded) &&
			p.SettledAt == nil && p.DoctorID != nil && p.DoctorAmount > 0 &&
			p.ProcessedAt != nil && p.ProcessedAt.Before(cutoff) {
			due = append(due, *p)
		}
	}
	return due, nil
}

func (s *fakePaymentStore) MarkSettled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		p.SettledAt = &at
	}
	return nil
}

type fakeLedgerStore struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*models.BalanceLedger
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{ledgers: make(map[uuid.UUID]*models.BalanceLedger)}
}

func (s *fakeLedgerStore) Get(_ context.Context, doctorID uuid.UUID) (*models.BalanceLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[doctorID]
	if !ok {
		return nil, nil
	}
	clone := *l
	return &clone, nil
}

func (s *fakeLedgerStore) Mutate(_ context.Context, doctorID uuid.UUID, fn func(l *models.BalanceLedger) error) (*models.BalanceLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[doctorID]
	if !ok {
		l = &models.BalanceLedger{ID: uuid.New(), DoctorID: doctorID, MinimumPayout: 50, PayoutEnabled: true}
	}
	work := *l
	if err := fn(&work); err != nil {
		return nil, err
	}
	s.ledgers[doctorID] = &work
	clone := work
	return &clone, nil
}

type fakeRefundStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.RefundRecord
}

func newFakeRefundStore() *fakeRefundStore {
	return &fakeRefundStore{records: make(map[uuid.UUID]*models.RefundRecord)}
}

func (s *fakeRefundStore) Create(_ context.Context, r *models.RefundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *r
	s.records[r.ID] = &clone
	return nil
}

func (s *fakeRefundStore) Update(_ context.Context, r *models.RefundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *r
	s.records[r.ID] = &clone
	return nil
}

func (s *fakeRefundStore) CompletedTotalForPayment(_ context.Context, paymentID uuid.UUID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, r := range s.records {
		if r.PaymentID == paymentID && r.Status == models.RefundStatusCompleted {
			total += r.Amount
		}
	}
	return total, nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, amount float64, currency string, metadata map[string]string, idempotencyKey string) (*payments.Intent, error) {
	args := m.Called(ctx, amount, currency, metadata, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Intent), args.Error(1)
}

func (m *mockGateway) Confirm(ctx context.Context, intentID, paymentMethodRef string) (*payments.Intent, error) {
	args := m.Called(ctx, intentID, paymentMethodRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Intent), args.Error(1)
}

func (m *mockGateway) Cancel(ctx context.Context, intentID string) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}

func (m *mockGateway) Refund(ctx context.Context, chargeID string, amount float64, reason string, metadata map[string]string) (*payments.RefundResult, error) {
	args := m.Called(ctx, chargeID, amount, reason, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.RefundResult), args.Error(1)
}

func (m *mockGateway) Transfer(ctx context.Context, amount float64, destinationAccount string, metadata map[string]string) (*payments.TransferResult, error) {
	args := m.Called(ctx, amount, destinationAccount, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.TransferResult), args.Error(1)
}

type mockCouponClient struct {
	mock.Mock
}

func (m *mockCouponClient) ValidateCoupon(ctx context.Context, req coupons.ValidateRequest) (*coupons.ValidationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupons.ValidationResult), args.Error(1)
}

func (m *mockCouponClient) MarkCouponUsed(ctx context.Context, code string, usage coupons.Usage) (*coupons.MarkUsedResult, error) {
	args := m.Called(ctx, code, usage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupons.MarkUsedResult), args.Error(1)
}

func (m *mockCouponClient) GetCouponUsage(ctx context.Context, code string) (*coupons.UsageState, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupons.UsageState), args.Error(1)
}

// recordingPublisher counts emitted events; payment events keep the payment id
// so exactly-once assertions can pin them down.
type recordingPublisher struct {
	mu        sync.Mutex
	completed []uuid.UUID
	failed    []uuid.UUID
	cancelled []uuid.UUID
	refunds   int
	payouts   int
}

func (r *recordingPublisher) PaymentCompleted(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, p.ID)
}

func (r *recordingPublisher) PaymentFailed(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, p.ID)
}

func (r *recordingPublisher) PaymentCancelled(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, p.ID)
}

func (r *recordingPublisher) RefundProcessed(*models.Payment, *models.RefundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds++
}

func (r *recordingPublisher) PayoutProcessed(uuid.UUID, float64, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payouts++
}

// staticFees resolves every specialization to one fee.
type staticFees struct {
	fee float64
	pct float64
}

func (f staticFees) GetApplicableFee(context.Context, string) (float64, error) {
	return f.fee, nil
}

func (f staticFees) PlatformFeePercent(context.Context) (float64, error) {
	return f.pct, nil
}
