package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kasir/m/domain"
	"kasir/m/internal/customers"
	"kasir/m/internal/database/dbtest"
	"kasir/m/internal/eventbus"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.SaleCompleted
	keys   []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, payload.(eventbus.SaleCompleted))
	return p.err
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

type fixture struct {
	db        *sqlx.DB
	orch      *Orchestrator
	ledger    *ledger.Ledger
	publisher *recordingPublisher
	cache     *countingCache
	cashier   int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	pub := &recordingPublisher{}
	c := &countingCache{}
	led := ledger.New(db, time.UTC)
	return fixture{
		db:        db,
		orch:      New(db, inventory.New(db), customers.New(db), led, WithPublisher(pub, "sale.completed"), WithCatalogCache(c)),
		ledger:    led,
		publisher: pub,
		cache:     c,
		cashier:   dbtest.User(t, db, "kasir1", "secret", domain.LevelUser),
	}
}

func (f fixture) assertNothingRecorded(t *testing.T) {
	t.Helper()
	assert.Zero(t, dbtest.Count(t, f.db, "sales"))
	assert.Zero(t, dbtest.Count(t, f.db, "sale_lines"))
	assert.Zero(t, dbtest.Count(t, f.db, "customers"))
	assert.Empty(t, f.publisher.events)
	assert.Zero(t, f.cache.calls)
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)

	res, err := f.orch.Checkout(context.Background(), Request{
		CustomerName:   "Budi",
		Lines:          []Line{{ProductID: kaos, Quantity: 3}},
		AmountTendered: domain.NewMoney(200000),
		CashierID:      f.cashier,
	})
	require.NoError(t, err)
	assert.Equal(t, "150000", res.Total.String())
	assert.Equal(t, "50000", res.ChangeDue.String())
	assert.Equal(t, int64(7), dbtest.Quantity(t, f.db, kaos))

	sale, err := f.ledger.Get(context.Background(), res.SaleID)
	require.NoError(t, err)
	assert.Equal(t, "Budi", sale.CustomerName)
	assert.Equal(t, domain.PaymentCash, sale.PaymentMethod)
	assert.Equal(t, "200000", sale.AmountTendered.String())
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, "50000", sale.Lines[0].UnitPrice.String())
	assert.True(t, sale.Lines[0].Subtotal.Equal(sale.TotalAmount))
	assert.True(t, sale.AmountTendered.Sub(sale.TotalAmount).Equal(sale.ChangeDue))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, []string{"sale.completed"}, f.publisher.keys)
	event := f.publisher.events[0]
	assert.Equal(t, res.SaleID, event.SaleID)
	assert.Equal(t, f.cashier, event.CashierID)
	assert.Equal(t, []eventbus.SaleCompletedLine{{ProductID: kaos, Quantity: 3, RemainingStock: 7}}, event.Lines)
	assert.Equal(t, 1, f.cache.calls)
}

func TestCheckout_UsesAuthoritativePricesAndKeepsLineOrder(t *testing.T) {
	f := newFixture(t)
	jeans := dbtest.Product(t, f.db, "Celana Jeans", 150000, 5)
	kaos := dbtest.Product(t, f.db, "Kaos Hitam", 50000, 10)

	res, err := f.orch.Checkout(context.Background(), Request{
		Lines:          []Line{{ProductID: kaos, Quantity: 2}, {ProductID: jeans, Quantity: 1}},
		AmountTendered: domain.NewMoney(250000),
		CashierID:      f.cashier,
		PaymentMethod:  "qris",
	})
	require.NoError(t, err)
	assert.Equal(t, "250000", res.Total.String())
	assert.True(t, res.ChangeDue.IsZero())

	sale, err := f.ledger.Get(context.Background(), res.SaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.WalkInCustomer, sale.CustomerName)
	assert.Equal(t, "qris", sale.PaymentMethod)
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, kaos, sale.Lines[0].ProductID)
	assert.Equal(t, jeans, sale.Lines[1].ProductID)
	assert.Equal(t, int64(8), dbtest.Quantity(t, f.db, kaos))
	assert.Equal(t, int64(4), dbtest.Quantity(t, f.db, jeans))
}

func TestCheckout_OutOfStock(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 0)

	_, err := f.orch.Checkout(context.Background(), Request{
		CustomerName:   "Budi",
		Lines:          []Line{{ProductID: kaos, Quantity: 1}},
		AmountTendered: domain.NewMoney(50000),
		CashierID:      f.cashier,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.False(t, errors.Is(err, domain.ErrConflict))
	assert.EqualError(t, err, "insufficient stock for product Kaos (requested 1, available 0)")
	assert.Zero(t, dbtest.Quantity(t, f.db, kaos))
	f.assertNothingRecorded(t)
}

func TestCheckout_AtomicWhenLaterLineFails(t *testing.T) {
	f := newFixture(t)
	a := dbtest.Product(t, f.db, "A", 10000, 5)
	b := dbtest.Product(t, f.db, "B", 20000, 0)

	_, err := f.orch.Checkout(context.Background(), Request{
		CustomerName:   "Sari",
		Lines:          []Line{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}},
		AmountTendered: domain.NewMoney(100000),
		CashierID:      f.cashier,
	})
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b, stockErr.ProductID)
	assert.Equal(t, int64(5), dbtest.Quantity(t, f.db, a))
	f.assertNothingRecorded(t)
}

func TestCheckout_InsufficientPayment(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)

	_, err := f.orch.Checkout(context.Background(), Request{
		CustomerName:   "Budi",
		Lines:          []Line{{ProductID: kaos, Quantity: 3}},
		AmountTendered: domain.NewMoney(100000),
		CashierID:      f.cashier,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Equal(t, int64(10), dbtest.Quantity(t, f.db, kaos))
	f.assertNothingRecorded(t)
}

func TestCheckout_ProductNotFound(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)

	_, err := f.orch.Checkout(context.Background(), Request{
		Lines:          []Line{{ProductID: kaos, Quantity: 1}, {ProductID: 999, Quantity: 1}},
		AmountTendered: domain.NewMoney(500000),
		CashierID:      f.cashier,
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, int64(10), dbtest.Quantity(t, f.db, kaos))
	f.assertNothingRecorded(t)
}

func TestCheckout_RejectsMalformedRequests(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"empty", Request{CashierID: f.cashier}, domain.ErrEmptyCart},
		{"zero quantity", Request{Lines: []Line{{ProductID: kaos}}, CashierID: f.cashier}, domain.ErrInvalidQuantity},
		{"duplicate product", Request{
			Lines:          []Line{{ProductID: kaos, Quantity: 1}, {ProductID: kaos, Quantity: 2}},
			AmountTendered: domain.NewMoney(500000),
			CashierID:      f.cashier,
		}, domain.ErrInvalidQuantity},
		{"negative tendered", Request{
			Lines:          []Line{{ProductID: kaos, Quantity: 1}},
			AmountTendered: domain.NewMoney(-1),
			CashierID:      f.cashier,
		}, domain.ErrInsufficientPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orch.Checkout(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.orch.Checkout(ctx, Request{Lines: []Line{{ProductID: kaos, Quantity: 1}}, AmountTendered: domain.NewMoney(50000)})
	require.Error(t, err)
	assert.False(t, domain.IsBusinessError(err))

	assert.Equal(t, int64(10), dbtest.Quantity(t, f.db, kaos))
	f.assertNothingRecorded(t)
}

func TestCheckout_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Checkout(ctx, Request{
		Lines:          []Line{{ProductID: kaos, Quantity: 1}},
		AmountTendered: domain.NewMoney(50000),
		CashierID:      f.cashier,
	})
	assert.ErrorIs(t, err, context.Canceled)
	f.assertNothingRecorded(t)
}

func TestCheckout_PublishFailureKeepsSale(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 10)

	res, err := f.orch.Checkout(context.Background(), Request{
		Lines:          []Line{{ProductID: kaos, Quantity: 1}},
		AmountTendered: domain.NewMoney(50000),
		CashierID:      f.cashier,
	})
	require.NoError(t, err)
	assert.NotZero(t, res.SaleID)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "sales"))
	assert.Equal(t, 1, f.cache.calls)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	kaos := dbtest.Product(t, f.db, "Kaos", 50000, 1)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orch.Checkout(context.Background(), Request{
				Lines:          []Line{{ProductID: kaos, Quantity: 1}},
				AmountTendered: domain.NewMoney(50000),
				CashierID:      f.cashier,
			})
		}(i)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)
	assert.Zero(t, dbtest.Quantity(t, f.db, kaos))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "sales"))
}

func TestCheckout_ConcurrentInvariants(t *testing.T) {
	f := newFixture(t)
	a := dbtest.Product(t, f.db, "A", 1250, 7)
	b := dbtest.Product(t, f.db, "B", 3300, 4)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []Line{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}}
			if i%2 == 1 {
				lines = []Line{{ProductID: b, Quantity: 1}, {ProductID: a, Quantity: 1}}
			}
			_, err := f.orch.Checkout(context.Background(), Request{
				Lines:          lines,
				AmountTendered: domain.NewMoney(10000),
				CashierID:      f.cashier,
			})
			if err != nil && !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	qa, qb := dbtest.Quantity(t, f.db, a), dbtest.Quantity(t, f.db, b)
	assert.GreaterOrEqual(t, qa, int64(0))
	assert.GreaterOrEqual(t, qb, int64(0))

	var sold []struct {
		ProductID int64 `db:"product_id"`
		Units     int64 `db:"units"`
	}
	require.NoError(t, f.db.Select(&sold, `SELECT product_id, SUM(quantity) AS units FROM sale_lines GROUP BY product_id`))
	for _, s := range sold {
		switch s.ProductID {
		case a:
			assert.Equal(t, int64(7), qa+s.Units)
		case b:
			assert.Equal(t, int64(4), qb+s.Units)
		}
	}

	history, err := f.ledger.List(context.Background(), nil, 0)
	require.NoError(t, err)
	for _, summary := range history {
		sale, err := f.ledger.Get(context.Background(), summary.ID)
		require.NoError(t, err)
		sum := domain.NewMoney(0)
		for _, line := range sale.Lines {
			sum = sum.Add(line.Subtotal)
		}
		assert.True(t, sum.Equal(sale.TotalAmount))
		assert.True(t, sale.AmountTendered.Sub(sale.TotalAmount).Equal(sale.ChangeDue))
		assert.False(t, sale.ChangeDue.IsNegative())
	}
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "unit_price", "quantity", "image_url"})
}

func mockOrchestrator(t *testing.T) (*Orchestrator, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")
	pub := &recordingPublisher{}
	return New(db, inventory.New(db), customers.New(db), ledger.New(db, time.UTC), WithPublisher(pub, "")), mock, pub
}

func TestCheckout_DecrementConflictRollsBack(t *testing.T) {
	orch, mock, pub := mockOrchestrator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, unit_price, quantity, image_url FROM products WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(productRows().AddRow(int64(1), "Kaos", "50000", int64(1), ""))
	mock.ExpectExec(`INSERT INTO customers`).
		WithArgs(domain.WalkInCustomer, domain.Placeholder, domain.Placeholder).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id FROM customers WHERE name = \?`).
		WithArgs(domain.WalkInCustomer).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO sales`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectExec(`INSERT INTO sale_lines`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// A concurrent checkout took the last unit after the first read.
	mock.ExpectQuery(`UPDATE products SET quantity = quantity - \? WHERE id = \? AND quantity >= \?`).
		WithArgs(int64(1), int64(1), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectQuery(`SELECT id, name, unit_price, quantity, image_url FROM products WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(productRows().AddRow(int64(1), "Kaos", "50000", int64(0), ""))
	mock.ExpectRollback()

	_, err := orch.Checkout(context.Background(), Request{
		Lines:          []Line{{ProductID: 1, Quantity: 1}},
		AmountTendered: domain.NewMoney(50000),
		CashierID:      3,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Kaos", stockErr.ProductName)
	assert.Contains(t, err.Error(), "changed during checkout")
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckout_SerializationFailureIsConflict(t *testing.T) {
	tests := []struct {
		name     string
		pgErr    *pgconn.PgError
		conflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch, mock, pub := mockOrchestrator(t)

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT id, name, unit_price, quantity, image_url FROM products WHERE id = \?`).
				WithArgs(int64(1)).
				WillReturnError(tt.pgErr)
			mock.ExpectRollback()

			_, err := orch.Checkout(context.Background(), Request{
				Lines:          []Line{{ProductID: 1, Quantity: 1}},
				AmountTendered: domain.NewMoney(50000),
				CashierID:      3,
			})
			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, domain.ErrConflict))
			assert.Equal(t, tt.conflict, domain.IsBusinessError(err))
			assert.Empty(t, pub.events)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCheckout_StorageFailureIsNotBusinessError(t *testing.T) {
	orch, mock, _ := mockOrchestrator(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := orch.Checkout(context.Background(), Request{
		Lines:          []Line{{ProductID: 1, Quantity: 1}},
		AmountTendered: domain.NewMoney(50000),
		CashierID:      3,
	})
	require.Error(t, err)
	assert.False(t, domain.IsBusinessError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
