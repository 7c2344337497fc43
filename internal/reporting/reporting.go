// Package reporting computes read-only rollups over the sales ledger and the
// inventory. Nothing here writes.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"kasir/m/domain"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
)

type DailyStats struct {
	Date    string       `json:"date"`
	Count   int64        `json:"count"`
	Revenue domain.Money `json:"revenue"`
}

type Dashboard struct {
	Users        int64                `json:"users"`
	Products     int64                `json:"products"`
	Customers    int64                `json:"customers"`
	Transactions int64                `json:"transactions"`
	Revenue      domain.Money         `json:"revenue"`
	StockUnits   int64                `json:"stock_units"`
	RecentSales  []domain.SaleSummary `json:"recent_sales"`
	LowStock     []domain.Product     `json:"low_stock"`
}

type Options struct {
	LowStock         inventory.LowStockOptions
	RecentSalesLimit int
}

type Service struct {
	db        *sqlx.DB
	ledger    *ledger.Ledger
	inventory *inventory.Store
	loc       *time.Location
	opts      Options
}

func New(db *sqlx.DB, led *ledger.Ledger, inv *inventory.Store, loc *time.Location, opts Options) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, ledger: led, inventory: inv, loc: loc, opts: opts}
}

// DailyStats counts the sales of day's calendar day and sums their totals.
func (s *Service) DailyStats(ctx context.Context, day time.Time) (DailyStats, error) {
	start, end := domain.DayBounds(day, s.loc)
	var totals []domain.Money
	err := s.db.SelectContext(ctx, &totals,
		s.db.Rebind(`SELECT total_amount FROM sales WHERE created_at >= ? AND created_at < ?`), start, end)
	if err != nil {
		return DailyStats{}, fmt.Errorf("daily stats: %w", err)
	}
	return DailyStats{
		Date:    start.In(s.loc).Format(time.DateOnly),
		Count:   int64(len(totals)),
		Revenue: sum(totals),
	}, nil
}

// Dashboard runs the rollup queries concurrently. The first failure cancels
// the rest.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM users`, &d.Users},
		{`SELECT COUNT(*) FROM products`, &d.Products},
		{`SELECT COUNT(*) FROM customers`, &d.Customers},
		{`SELECT COUNT(*) FROM sales`, &d.Transactions},
		{`SELECT COALESCE(SUM(quantity), 0) FROM products`, &d.StockUnits},
	}
	for _, c := range counts {
		g.Go(func() error {
			if err := s.db.GetContext(ctx, c.dst, c.query); err != nil {
				return fmt.Errorf("dashboard %q: %w", c.query, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		var totals []domain.Money
		if err := s.db.SelectContext(ctx, &totals, `SELECT total_amount FROM sales`); err != nil {
			return fmt.Errorf("dashboard revenue: %w", err)
		}
		d.Revenue = sum(totals)
		return nil
	})
	g.Go(func() error {
		recent, err := s.ledger.List(ctx, nil, s.opts.RecentSalesLimit)
		d.RecentSales = recent
		return err
	})
	g.Go(func() error {
		low, err := s.inventory.LowStock(ctx, s.opts.LowStock)
		d.LowStock = low
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func sum(values []domain.Money) domain.Money {
	total := domain.NewMoney(0)
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
