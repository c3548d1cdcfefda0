package synchronizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/notification"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/user"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderRepository struct {
	order.Repository
	mock.Mock
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, q db.DBTX, orderID uint) (*order.Order, error) {
	args := m.Called(ctx, q, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	o := *args.Get(0).(*order.Order)
	return &o, args.Error(1)
}

func (m *MockOrderRepository) ApplyPaymentProjection(ctx context.Context, q db.DBTX, orderID uint, status order.Status, paymentStatus string) error {
	return m.Called(ctx, q, orderID, status, paymentStatus).Error(0)
}

type MockLedger struct {
	inventory.Ledger
	mock.Mock
}

func (m *MockLedger) Release(ctx context.Context, q db.DBTX, orderID uint) error {
	return m.Called(ctx, q, orderID).Error(0)
}

func (m *MockLedger) Commit(ctx context.Context, q db.DBTX, orderID uint) error {
	return m.Called(ctx, q, orderID).Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendOrderConfirmation(ctx context.Context, q db.DBTX, o *order.Order) error {
	return m.Called(ctx, q, o).Error(0)
}

func orderIn(status order.Status) *order.Order {
	return &order.Order{
		ID:            10,
		OrderNumber:   "ORD-1A2B3C4D",
		UserID:        7,
		Status:        status,
		TotalAmount:   decimal.RequireFromString("450.50"),
		PaymentStatus: order.PaymentStatusPending,
	}
}

func paymentIn(status payment.Status) *payment.Payment {
	return &payment.Payment{OrderID: 10, Status: status}
}

func TestProject(t *testing.T) {
	cases := []struct {
		in            payment.Status
		status        order.Status
		paymentStatus string
	}{
		{payment.StatusPending, order.StatusPending, "pending"},
		{payment.StatusCreated, order.StatusPending, "pending"},
		{payment.StatusCompleted, order.StatusConfirmed, "completed"},
		{payment.StatusCOD, order.StatusConfirmed, "Cash on Delivery"},
		{payment.StatusFailed, order.StatusPaymentFailed, "failed"},
		{payment.StatusCancelled, order.StatusCancelled, "cancelled"},
		{payment.StatusRefunded, order.StatusRefunded, "refunded"},
	}

	for _, tc := range cases {
		t.Run(string(tc.in), func(t *testing.T) {
			status, paymentStatus, err := Project(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.paymentStatus, paymentStatus)
		})
	}

	_, _, err := Project("paid")
	assert.ErrorIs(t, err, ErrUnknownPaymentStatus)
}

func TestSynchronizer_Apply(t *testing.T) {
	ctx := context.Background()

	newSync := func() (*Synchronizer, *MockOrderRepository, *MockLedger, *MockDispatcher) {
		orders, ledger, dispatcher := new(MockOrderRepository), new(MockLedger), new(MockDispatcher)
		return New(orders, ledger, dispatcher), orders, ledger, dispatcher
	}

	t.Run("Completed confirms, commits stock and notifies", func(t *testing.T) {
		s, orders, ledger, dispatcher := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusPending), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusConfirmed, "completed").Return(nil)
		ledger.On("Commit", ctx, nil, uint(10)).Return(nil)
		dispatcher.On("SendOrderConfirmation", ctx, nil, mock.MatchedBy(func(o *order.Order) bool {
			return o.Status == order.StatusConfirmed
		})).Return(nil)

		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))

		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)
		assert.Equal(t, "completed", o.PaymentStatus)
		ledger.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("COD keeps display literal", func(t *testing.T) {
		s, orders, ledger, dispatcher := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusPending), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusConfirmed, "Cash on Delivery").Return(nil)
		ledger.On("Commit", ctx, nil, uint(10)).Return(nil)
		dispatcher.On("SendOrderConfirmation", ctx, nil, mock.Anything).Return(nil)

		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusCOD))

		require.NoError(t, err)
		assert.Equal(t, "Cash on Delivery", o.PaymentStatus)
	})

	t.Run("Cancelled releases stock", func(t *testing.T) {
		s, orders, ledger, dispatcher := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusPending), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusCancelled, "cancelled").Return(nil)
		ledger.On("Release", ctx, nil, uint(10)).Return(nil)

		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusCancelled))

		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, o.Status)
		ledger.AssertExpectations(t)
		dispatcher.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failed payment", func(t *testing.T) {
		s, orders, ledger, _ := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusPending), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusPaymentFailed, "failed").Return(nil)

		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusFailed))

		require.NoError(t, err)
		assert.Equal(t, order.StatusPaymentFailed, o.Status)
		ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Shipped order is not regressed", func(t *testing.T) {
		s, orders, ledger, dispatcher := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusShipped), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusShipped, "completed").Return(nil)

		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))

		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, o.Status)
		assert.Equal(t, "completed", o.PaymentStatus)
		ledger.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
		dispatcher.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid transition writes nothing", func(t *testing.T) {
		s, orders, _, _ := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusCancelled), nil)

		_, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		orders.AssertNotCalled(t, "ApplyPaymentProjection", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown status", func(t *testing.T) {
		s, orders, _, _ := newSync()

		_, err := s.Apply(ctx, nil, paymentIn("paid"))

		assert.ErrorIs(t, err, ErrUnknownPaymentStatus)
		orders.AssertNotCalled(t, "GetForUpdate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Order missing", func(t *testing.T) {
		s, orders, _, _ := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(nil, order.ErrOrderNotFound)

		_, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))

		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("Dispatcher storage error fails the sync", func(t *testing.T) {
		s, orders, ledger, dispatcher := newSync()
		orders.On("GetForUpdate", ctx, nil, uint(10)).Return(orderIn(order.StatusPending), nil)
		orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusConfirmed, "completed").Return(nil)
		ledger.On("Commit", ctx, nil, uint(10)).Return(nil)
		dispatcher.On("SendOrderConfirmation", ctx, nil, mock.Anything).Return(errors.New("db down"))

		_, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))
		assert.Error(t, err)
	})
}

// ----------------- Duplicate deliveries -----------------

// memNotifications is an in-memory notification store with the same
// dedupe semantics as the notifications table.
type memNotifications struct {
	mu   sync.Mutex
	rows []notification.Notification
}

func (r *memNotifications) ExistsForSubject(_ context.Context, _ db.DBTX, userID uint, channel notification.Channel, fragment string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.UserID == userID && n.Type == channel && strings.Contains(n.Subject, fragment) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memNotifications) Insert(_ context.Context, _ db.DBTX, n *notification.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.DedupeKey != nil && n.DedupeKey != nil && *existing.DedupeKey == *n.DedupeKey {
			return false, nil
		}
	}
	n.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *n)
	return true, nil
}

func (r *memNotifications) MarkSent(_ context.Context, _ db.DBTX, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id-1].Status = notification.StatusSent
	return nil
}

func (r *memNotifications) MarkFailed(_ context.Context, _ db.DBTX, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id-1].Status = notification.StatusFailed
	return nil
}

func (r *memNotifications) GetTemplate(context.Context, db.DBTX, string) (*notification.EmailTemplate, error) {
	return nil, notification.ErrTemplateNotFound
}

type staticUsers struct{}

func (staticUsers) GetByID(_ context.Context, _ db.DBTX, id uint) (*user.User, error) {
	return &user.User{ID: id, Email: "asha@example.com", Username: "asha"}, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	sends int
}

func (n *countingNotifier) Send(context.Context, notification.Recipient, string, notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	return nil
}

func TestSynchronizer_DuplicateConfirmationsSendOneEmail(t *testing.T) {
	ctx := context.Background()

	orders := new(MockOrderRepository)
	ledger := new(MockLedger)
	notifier := &countingNotifier{}
	store := &memNotifications{}
	dispatcher := notification.NewDispatcher(store, staticUsers{}, orders, notifier)
	s := New(orders, ledger, dispatcher)

	confirmed := orderIn(order.StatusConfirmed)
	confirmed.Items = []order.OrderItem{{ProductName: "Pro Racket", Quantity: 1, Price: decimal.RequireFromString("450.50")}}
	pending := orderIn(order.StatusPending)
	pending.Items = confirmed.Items

	// verify confirms first, the captured webhook arrives afterwards
	orders.On("GetForUpdate", ctx, nil, uint(10)).Return(pending, nil).Once()
	orders.On("GetForUpdate", ctx, nil, uint(10)).Return(confirmed, nil)
	orders.On("ApplyPaymentProjection", ctx, nil, uint(10), order.StatusConfirmed, "completed").Return(nil)
	ledger.On("Commit", ctx, nil, uint(10)).Return(nil)

	for i := 0; i < 3; i++ {
		o, err := s.Apply(ctx, nil, paymentIn(payment.StatusCompleted))
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)
	}

	assert.Equal(t, 1, notifier.sends)
	require.Len(t, store.rows, 1)
	assert.Equal(t, notification.StatusSent, store.rows[0].Status)
	assert.Contains(t, store.rows[0].Subject, "ORD-1A2B3C4D")
}
