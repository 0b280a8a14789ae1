package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability/zaplogger"
	obsprovider "github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type inventoryStub struct {
	allowed bool
	err     error

	calls       int
	productID   string
	quantity    int
	credentials []string
}

func (s *inventoryStub) ValidateStock(_ context.Context, productID string, quantity int, credential string) (bool, error) {
	s.calls++
	s.productID, s.quantity = productID, quantity
	s.credentials = append(s.credentials, credential)
	return s.allowed, s.err
}

type publisherStub struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *publisherStub) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type fixedIDs struct{ ids []string }

func (f *fixedIDs) NewID() string {
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id
}

func approving(status dompay.Status, err error) Method {
	return MethodFunc(func(context.Context, CaptureRequest) (dompay.Status, error) { return status, err })
}

type fixture struct {
	repo      *memory.PaymentRepository
	inventory *inventoryStub
	publisher *publisherStub
	uc        *ProcessPaymentUseCase
}

func newFixture(methods map[dompay.Mode]Method) *fixture {
	f := &fixture{
		repo:      memory.NewPaymentRepository(),
		inventory: &inventoryStub{allowed: true},
		publisher: &publisherStub{},
	}
	if methods == nil {
		methods = map[dompay.Mode]Method{
			dompay.ModeCreditCard: approving(dompay.StatusSuccess, nil),
			dompay.ModeWallet:     approving(dompay.StatusSuccess, nil),
			dompay.ModePayPal:     approving(dompay.StatusSuccess, nil),
		}
	}
	f.uc = NewProcessPaymentUseCase(f.repo, f.inventory, NewRegistry(methods), f.publisher,
		&fixedIDs{ids: []string{"tx-1", "tx-2", "tx-3"}}, nil)
	return f
}

func validInput() ProcessPaymentInput {
	return ProcessPaymentInput{
		OrderID:     "O",
		ProductID:   "P",
		CustomerID:  "C",
		Quantity:    5,
		TotalAmount: decimal.RequireFromString("100.00"),
		Mode:        dompay.ModeCreditCard,
		Credential:  "Bearer token-1",
	}
}

func TestProcessPaymentSuccessPublishesOneEvent(t *testing.T) {
	f := newFixture(nil)

	p, err := f.uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", p.TransactionID)
	assert.Equal(t, dompay.StatusSuccess, p.Status)
	assert.Equal(t, "O", p.OrderID)
	assert.Equal(t, "C", p.CustomerID)
	assert.True(t, decimal.RequireFromString("100").Equal(p.TotalAmount))

	stored, err := f.repo.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSuccess, stored.Status)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, dompay.PaymentCompletedEvent{ProductID: "P", Quantity: 5, TransactionID: "tx-1"}, f.publisher.events[0])

	assert.Equal(t, "P", f.inventory.productID)
	assert.Equal(t, 5, f.inventory.quantity)
	assert.Equal(t, []string{"Bearer token-1"}, f.inventory.credentials)
}

func TestProcessPaymentStockDeniedCreatesNothing(t *testing.T) {
	f := newFixture(nil)
	f.inventory.allowed = false

	p, err := f.uc.Execute(context.Background(), validInput())
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrStockNotValidated)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Zero(t, f.repo.Len())
	assert.Empty(t, f.publisher.events)
}

func TestProcessPaymentInventoryFailureCreatesNothing(t *testing.T) {
	f := newFixture(nil)
	transport := errors.New("connection refused")
	f.inventory.err = transport

	p, err := f.uc.Execute(context.Background(), validInput())
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrStockNotValidated)
	assert.ErrorIs(t, err, transport)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
	assert.Zero(t, f.repo.Len())
	assert.Empty(t, f.publisher.events)
}

func TestProcessPaymentFailedCaptureIsStoredWithoutEvent(t *testing.T) {
	cases := map[string]Method{
		"declined":        approving(dompay.StatusFailed, nil),
		"method error":    approving("", errors.New("processor timeout")),
		"invalid outcome": approving(dompay.StatusPending, nil),
	}
	for name, method := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(map[dompay.Mode]Method{dompay.ModeCreditCard: method})

			p, err := f.uc.Execute(context.Background(), validInput())
			require.NoError(t, err)
			assert.Equal(t, dompay.StatusFailed, p.Status)

			stored, err := f.repo.Get(context.Background(), p.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, dompay.StatusFailed, stored.Status)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestProcessPaymentUnknownModeLeavesPendingRecord(t *testing.T) {
	f := newFixture(map[dompay.Mode]Method{dompay.ModeCreditCard: approving(dompay.StatusSuccess, nil)})
	in := validInput()
	in.Mode = dompay.ModeWallet

	p, err := f.uc.Execute(context.Background(), in)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrUnknownPaymentMode)

	stored, err := f.repo.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusPending, stored.Status)
	assert.Empty(t, f.publisher.events)
}

func TestProcessPaymentPublishFailureKeepsPayment(t *testing.T) {
	f := newFixture(nil)
	f.publisher.err = errors.New("broker down")

	p, err := f.uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSuccess, p.Status)

	stored, err := f.repo.Get(context.Background(), p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSuccess, stored.Status)
}

func TestProcessPaymentValidation(t *testing.T) {
	mutate := map[string]func(*ProcessPaymentInput){
		"zero quantity":   func(in *ProcessPaymentInput) { in.Quantity = 0 },
		"negative amount": func(in *ProcessPaymentInput) { in.TotalAmount = decimal.NewFromInt(-1) },
		"zero amount":     func(in *ProcessPaymentInput) { in.TotalAmount = decimal.Zero },
		"missing order":   func(in *ProcessPaymentInput) { in.OrderID = "" },
		"missing product": func(in *ProcessPaymentInput) { in.ProductID = "" },
		"bad mode":        func(in *ProcessPaymentInput) { in.Mode = "CASH" },
	}
	for name, m := range mutate {
		t.Run(name, func(t *testing.T) {
			f := newFixture(nil)
			in := validInput()
			m(&in)

			_, err := f.uc.Execute(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, f.inventory.calls)
			assert.Zero(t, f.repo.Len())
		})
	}
}

func TestProcessPaymentLogsOneUseCaseLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tel := obsprovider.New(nil, zaplogger.Wrap(zap.New(core)), nil, nil)

	repo := memory.NewPaymentRepository()
	uc := NewProcessPaymentUseCase(repo, &inventoryStub{allowed: true},
		NewRegistry(map[dompay.Mode]Method{dompay.ModeCreditCard: approving(dompay.StatusSuccess, nil)}),
		&publisherStub{}, &fixedIDs{ids: []string{"tx-1"}}, tel)

	_, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)

	done := logs.FilterMessage("use_case_done").All()
	require.Len(t, done, 1)
	ctx := done[0].ContextMap()
	assert.Equal(t, "success", ctx["outcome"])
	assert.Equal(t, "tx-1", ctx["transaction_id"])
	assert.Equal(t, string(dompay.StatusSuccess), ctx["payment_status"])
	assert.Equal(t, useCasePaymentProcess, ctx["use_case"])
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, status dompay.Status) *memory.PaymentRepository {
		t.Helper()
		repo := memory.NewPaymentRepository()
		p, err := dompay.New("tx-1", "O", "C", decimal.NewFromInt(10), dompay.ModeWallet)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, p))
		if status != dompay.StatusPending {
			require.NoError(t, repo.UpdateStatus(ctx, "tx-1", dompay.StatusPending, status))
		}
		return repo
	}

	t.Run("inventory failure downgrades success", func(t *testing.T) {
		repo := seed(t, dompay.StatusSuccess)
		uc := NewReconcilePaymentUseCase(repo, nil)

		res, err := uc.Execute(ctx, ReconcileInput{TransactionID: "tx-1", Status: dompay.StatusFailed})
		require.NoError(t, err)
		assert.True(t, res.Changed)

		stored, _ := repo.Get(ctx, "tx-1")
		assert.Equal(t, dompay.StatusFailed, stored.Status)
	})

	t.Run("duplicate delivery is idempotent", func(t *testing.T) {
		repo := seed(t, dompay.StatusSuccess)
		uc := NewReconcilePaymentUseCase(repo, nil)

		for i := 0; i < 2; i++ {
			res, err := uc.Execute(ctx, ReconcileInput{TransactionID: "tx-1", Status: dompay.StatusSuccess})
			require.NoError(t, err)
			assert.False(t, res.Changed)
			assert.Equal(t, dompay.StatusSuccess, res.Status)
		}
	})

	t.Run("success never revives a failed payment", func(t *testing.T) {
		repo := seed(t, dompay.StatusFailed)
		uc := NewReconcilePaymentUseCase(repo, nil)

		_, err := uc.Execute(ctx, ReconcileInput{TransactionID: "tx-1", Status: dompay.StatusSuccess})
		assert.ErrorIs(t, err, dompay.ErrInvalidStateTransition)

		stored, _ := repo.Get(ctx, "tx-1")
		assert.Equal(t, dompay.StatusFailed, stored.Status)
	})

	t.Run("unknown reference creates nothing", func(t *testing.T) {
		repo := memory.NewPaymentRepository()
		uc := NewReconcilePaymentUseCase(repo, nil)

		_, err := uc.Execute(ctx, ReconcileInput{TransactionID: "missing", Status: dompay.StatusSuccess})
		assert.ErrorIs(t, err, ErrUnknownReference)
		assert.Zero(t, repo.Len())
	})

	t.Run("pending payment takes the reported status", func(t *testing.T) {
		repo := seed(t, dompay.StatusPending)
		uc := NewReconcilePaymentUseCase(repo, nil)

		res, err := uc.Execute(ctx, ReconcileInput{TransactionID: "tx-1", Status: dompay.StatusSuccess})
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, dompay.StatusSuccess, res.Status)
	})
}

// staleOnceRepo loses the first compare-and-set to a concurrent writer.
type staleOnceRepo struct {
	*memory.PaymentRepository
	raced bool
}

func (r *staleOnceRepo) UpdateStatus(ctx context.Context, id string, from, to dompay.Status) error {
	if !r.raced {
		r.raced = true
		if err := r.PaymentRepository.UpdateStatus(ctx, id, from, dompay.StatusFailed); err != nil {
			return err
		}
		return fmt.Errorf("update: %w", dompay.ErrStaleStatus)
	}
	return r.PaymentRepository.UpdateStatus(ctx, id, from, to)
}

func TestReconcileRereadsAfterStaleWrite(t *testing.T) {
	ctx := context.Background()
	base := memory.NewPaymentRepository()
	p, err := dompay.New("tx-1", "O", "C", decimal.NewFromInt(10), dompay.ModeWallet)
	require.NoError(t, err)
	require.NoError(t, base.Create(ctx, p))
	repo := &staleOnceRepo{PaymentRepository: base}

	res, err := NewReconcilePaymentUseCase(repo, nil).Execute(ctx, ReconcileInput{TransactionID: "tx-1", Status: dompay.StatusFailed})
	require.NoError(t, err)
	assert.False(t, res.Changed, "the concurrent writer already applied FAILED")

	stored, _ := base.Get(ctx, "tx-1")
	assert.Equal(t, dompay.StatusFailed, stored.Status)
}

func TestGetPayment(t *testing.T) {
	f := newFixture(nil)
	created, err := f.uc.Execute(context.Background(), validInput())
	require.NoError(t, err)

	q := NewGetPaymentUseCase(f.repo, nil)
	got, err := q.Execute(context.Background(), created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, created.TransactionID, got.TransactionID)

	_, err = q.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}
