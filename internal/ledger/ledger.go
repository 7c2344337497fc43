// Package ledger is the append-only record of committed sales.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"kasir/m/domain"
)

// ErrUnbalanced reports a sale whose header does not agree with its lines.
var ErrUnbalanced = errors.New("sale header does not match its lines")

const (
	insertSaleSQL = `INSERT INTO sales (created_at, customer_id, cashier_id, total_amount, amount_tendered, change_due, payment_method)
VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	insertLineSQL = `INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?)`

	summaryColumns = `s.id, s.created_at, s.customer_id, s.cashier_id, s.total_amount, s.amount_tendered, s.change_due,
s.payment_method, c.name AS customer_name, u.name AS cashier_name
FROM sales s
JOIN customers c ON c.id = s.customer_id
JOIN users u ON u.id = s.cashier_id`

	selectSaleSQL  = `SELECT ` + summaryColumns + ` WHERE s.id = ?`
	selectLinesSQL = `SELECT l.id, l.sale_id, l.product_id, l.quantity, l.unit_price, l.subtotal, p.name AS product_name
FROM sale_lines l
JOIN products p ON p.id = l.product_id
WHERE l.sale_id = ?
ORDER BY l.id`
)

type Ledger struct {
	db  *sqlx.DB
	loc *time.Location
}

// New returns a ledger; loc defines calendar days for List.
func New(db *sqlx.DB, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{db: db, loc: loc}
}

// Append writes a sale header and its lines through tx. The header must carry
// at least one line, a total equal to the sum of line subtotals and a change
// equal to tendered minus total, never negative. The returned sale has its
// identity and timestamp set.
func (l *Ledger) Append(ctx context.Context, tx sqlx.ExtContext, sale domain.Sale, lines []domain.SaleLine) (domain.Sale, error) {
	if len(lines) == 0 {
		return domain.Sale{}, fmt.Errorf("append sale: %w", domain.ErrEmptyCart)
	}
	if err := balanced(sale, lines); err != nil {
		return domain.Sale{}, err
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = domain.PaymentCash
	}

	err := sqlx.GetContext(ctx, tx, &sale.ID, tx.Rebind(insertSaleSQL),
		sale.CreatedAt, sale.CustomerID, sale.CashierID,
		sale.TotalAmount, sale.AmountTendered, sale.ChangeDue, sale.PaymentMethod)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	insertLine := tx.Rebind(insertLineSQL)
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, insertLine, sale.ID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
			return domain.Sale{}, fmt.Errorf("insert sale line for product %d: %w", line.ProductID, err)
		}
	}
	return sale, nil
}

func balanced(sale domain.Sale, lines []domain.SaleLine) error {
	sum := domain.NewMoney(0)
	for _, line := range lines {
		if line.Quantity < 1 {
			return fmt.Errorf("line for product %d: %w", line.ProductID, domain.ErrInvalidQuantity)
		}
		sum = sum.Add(line.Subtotal)
	}
	if !sum.Equal(sale.TotalAmount) {
		return fmt.Errorf("%w: total %s, lines sum to %s", ErrUnbalanced, sale.TotalAmount, sum)
	}
	if sale.ChangeDue.IsNegative() || !sale.AmountTendered.Sub(sale.TotalAmount).Equal(sale.ChangeDue) {
		return fmt.Errorf("%w: change %s for tendered %s and total %s", ErrUnbalanced, sale.ChangeDue, sale.AmountTendered, sale.TotalAmount)
	}
	return nil
}

// Get returns the receipt view of one sale. Repeated calls return the same data.
func (l *Ledger) Get(ctx context.Context, id int64) (domain.SaleDetail, error) {
	var detail domain.SaleDetail
	err := l.db.GetContext(ctx, &detail.SaleSummary, l.db.Rebind(selectSaleSQL), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SaleDetail{}, fmt.Errorf("sale %d: %w", id, domain.ErrSaleNotFound)
	}
	if err != nil {
		return domain.SaleDetail{}, fmt.Errorf("load sale %d: %w", id, err)
	}

	detail.Lines = []domain.SaleLineDetail{}
	if err := l.db.SelectContext(ctx, &detail.Lines, l.db.Rebind(selectLinesSQL), id); err != nil {
		return domain.SaleDetail{}, fmt.Errorf("load lines of sale %d: %w", id, err)
	}
	return detail, nil
}

// List returns sale headers newest first. A non-nil day restricts the list to
// that calendar day; limit 0 returns every match.
func (l *Ledger) List(ctx context.Context, day *time.Time, limit int) ([]domain.SaleSummary, error) {
	q := `SELECT ` + summaryColumns
	var args []any
	if day != nil {
		start, end := domain.DayBounds(*day, l.loc)
		q += ` WHERE s.created_at >= ? AND s.created_at < ?`
		args = append(args, start, end)
	}
	q += ` ORDER BY s.created_at DESC, s.id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	sales := []domain.SaleSummary{}
	if err := l.db.SelectContext(ctx, &sales, l.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}
