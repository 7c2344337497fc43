package reporting

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasir/m/domain"
	"kasir/m/internal/customers"
	"kasir/m/internal/database"
	"kasir/m/internal/database/dbtest"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
)

func recordSale(t *testing.T, db *sqlx.DB, led *ledger.Ledger, cashier, product int64, total int64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		customer, err := customers.New(db).Resolve(ctx, tx, "")
		if err != nil {
			return err
		}
		_, err = led.Append(ctx, tx, domain.Sale{
			CreatedAt:      at,
			CustomerID:     customer,
			CashierID:      cashier,
			TotalAmount:    domain.NewMoney(total),
			AmountTendered: domain.NewMoney(total),
			ChangeDue:      domain.NewMoney(0),
		}, []domain.SaleLine{{ProductID: product, Quantity: 1, UnitPrice: domain.NewMoney(total), Subtotal: domain.NewMoney(total)}})
		return err
	})
	require.NoError(t, err)
}

func TestDailyStats_UsesConfiguredTimezone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	db := dbtest.Open(t)
	led := ledger.New(db, jakarta)
	cashier := dbtest.User(t, db, "kasir1", "secret", domain.LevelUser)
	product := dbtest.Product(t, db, "Kaos", 50000, 100)

	// 2026-10-14 in Jakarta is [2026-10-13T17:00Z, 2026-10-14T17:00Z).
	recordSale(t, db, led, cashier, product, 50000, time.Date(2026, 10, 13, 16, 59, 0, 0, time.UTC))
	recordSale(t, db, led, cashier, product, 150000, time.Date(2026, 10, 13, 17, 0, 0, 0, time.UTC))
	recordSale(t, db, led, cashier, product, 100000, time.Date(2026, 10, 14, 16, 59, 59, 0, time.UTC))
	recordSale(t, db, led, cashier, product, 70000, time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC))

	s := New(db, led, inventory.New(db), jakarta, Options{})
	stats, err := s.DailyStats(context.Background(), time.Date(2026, 10, 14, 9, 0, 0, 0, jakarta))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", stats.Date)
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, "250000", stats.Revenue.String())

	empty, err := s.DailyStats(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, jakarta))
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.Revenue.IsZero())
}

func TestDashboard(t *testing.T) {
	db := dbtest.Open(t)
	led := ledger.New(db, time.UTC)
	cashier := dbtest.User(t, db, "kasir1", "secret", domain.LevelUser)
	dbtest.User(t, db, "admin", "secret", domain.LevelAdmin)
	kaos := dbtest.Product(t, db, "Kaos", 50000, 10)
	dbtest.Product(t, db, "Jeans", 150000, 2)
	dbtest.Product(t, db, "Kemeja", 100000, 4)

	base := time.Date(2026, 10, 14, 1, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		recordSale(t, db, led, cashier, kaos, 50000, base.Add(time.Duration(i)*time.Minute))
	}

	s := New(db, led, inventory.New(db), time.UTC, Options{
		LowStock:         inventory.LowStockOptions{Threshold: 5, Limit: 5, Order: inventory.OrderByQuantity},
		RecentSalesLimit: 2,
	})
	d, err := s.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Users)
	assert.Equal(t, int64(3), d.Products)
	assert.Equal(t, int64(1), d.Customers)
	assert.Equal(t, int64(3), d.Transactions)
	assert.Equal(t, "150000", d.Revenue.String())
	assert.Equal(t, int64(16), d.StockUnits)
	require.Len(t, d.RecentSales, 2)
	assert.True(t, d.RecentSales[0].CreatedAt.After(d.RecentSales[1].CreatedAt))
	require.Len(t, d.LowStock, 2)
	assert.Equal(t, "Jeans", d.LowStock[0].Name)
	assert.Equal(t, "Kemeja", d.LowStock[1].Name)
}

func TestDashboard_StorageError(t *testing.T) {
	db := dbtest.Open(t)
	s := New(db, ledger.New(db, time.UTC), inventory.New(db), time.UTC, Options{})
	require.NoError(t, db.Close())

	_, err := s.Dashboard(context.Background())
	assert.Error(t, err)
}
