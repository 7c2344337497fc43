// Package checkout turns a list of product/quantity pairs into a committed
// sale. Stock validation, the sale record and the stock decrements happen in
// one transaction; a decrement that finds the stock gone aborts everything.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kasir/m/domain"
	"kasir/m/internal/customers"
	"kasir/m/internal/database"
	"kasir/m/internal/eventbus"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
)

// Postgres SQLSTATEs for a transaction that lost a race.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// DefaultTopic is the routing key of sale-completed events.
const DefaultTopic = "sale.completed"

type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type Request struct {
	CustomerName   string       `json:"customer_name"`
	Lines          []Line       `json:"lines"`
	AmountTendered domain.Money `json:"amount_tendered"`
	PaymentMethod  string       `json:"payment_method"`
	CashierID      int64        `json:"-"`
}

type Result struct {
	SaleID    int64        `json:"sale_id"`
	Total     domain.Money `json:"total"`
	ChangeDue domain.Money `json:"change_due"`
}

// Publisher receives the sale-completed event after commit.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Invalidator drops cached catalog snapshots after stock changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Orchestrator struct {
	db        *sqlx.DB
	inventory *inventory.Store
	customers *customers.Store
	ledger    *ledger.Ledger

	publisher Publisher
	topic     string
	catalog   Invalidator
	log       zerolog.Logger
}

type Option func(*Orchestrator)

// WithPublisher publishes a SaleCompleted event on topic for every commit.
func WithPublisher(p Publisher, topic string) Option {
	return func(o *Orchestrator) {
		o.publisher = p
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithCatalogCache invalidates c after every commit.
func WithCatalogCache(c Invalidator) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

func New(db *sqlx.DB, inv *inventory.Store, cust *customers.Store, led *ledger.Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:        db,
		inventory: inv,
		customers: cust,
		ledger:    led,
		publisher: eventbus.Nop{},
		topic:     DefaultTopic,
		log:       log.With().Str("component", "checkout").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (r Request) validate() error {
	if len(r.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	seen := make(map[int64]struct{}, len(r.Lines))
	for _, line := range r.Lines {
		if line.Quantity < 1 {
			return fmt.Errorf("product %d quantity %d: %w", line.ProductID, line.Quantity, domain.ErrInvalidQuantity)
		}
		if _, dup := seen[line.ProductID]; dup {
			return fmt.Errorf("product %d listed more than once: %w", line.ProductID, domain.ErrInvalidQuantity)
		}
		seen[line.ProductID] = struct{}{}
	}
	if r.AmountTendered.IsNegative() {
		return fmt.Errorf("tendered %s: %w", r.AmountTendered, domain.ErrInsufficientPayment)
	}
	if r.CashierID <= 0 {
		return errors.New("checkout requires a cashier")
	}
	return nil
}

// Checkout validates req against live stock and records the sale. It returns
// a business error from domain (not found, insufficient stock, conflict,
// invalid quantity, empty cart, insufficient payment) or a storage error.
// Cancelling ctx has no effect once the transaction has begun.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		o.log.Warn().Err(err).Int64("cashier_id", req.CashierID).Msg("checkout rejected")
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		req.PaymentMethod = domain.PaymentCash
	}

	o.log.Debug().Int64("cashier_id", req.CashierID).Int("lines", len(req.Lines)).Msg("checkout started")

	var (
		sale      domain.Sale
		lines     []domain.SaleLine
		remaining map[int64]int64
	)
	work := context.WithoutCancel(ctx)
	err := database.WithTx(work, o.db, func(tx *sqlx.Tx) error {
		var err error
		sale, lines, remaining, err = o.record(work, tx, req)
		return err
	})
	if err != nil {
		err = lostRace(err)
		if domain.IsBusinessError(err) {
			o.log.Warn().Err(err).Int64("cashier_id", req.CashierID).Msg("checkout failed")
		} else {
			o.log.Error().Err(err).Int64("cashier_id", req.CashierID).Msg("checkout storage failure")
		}
		return Result{}, err
	}

	o.log.Info().
		Int64("sale_id", sale.ID).
		Int64("cashier_id", sale.CashierID).
		Str("total", sale.TotalAmount.String()).
		Int("lines", len(lines)).
		Msg("sale committed")

	o.afterCommit(work, sale, lines, remaining)

	return Result{SaleID: sale.ID, Total: sale.TotalAmount, ChangeDue: sale.ChangeDue}, nil
}

// record runs inside the transaction.
func (o *Orchestrator) record(ctx context.Context, tx *sqlx.Tx, req Request) (domain.Sale, []domain.SaleLine, map[int64]int64, error) {
	lines := make([]domain.SaleLine, 0, len(req.Lines))
	names := make(map[int64]string, len(req.Lines))
	total := domain.NewMoney(0)

	for _, line := range req.Lines {
		p, err := o.inventory.Get(ctx, tx, line.ProductID)
		if err != nil {
			return domain.Sale{}, nil, nil, err
		}
		if p.AvailableQuantity < line.Quantity {
			return domain.Sale{}, nil, nil, &domain.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   line.Quantity,
				Available:   p.AvailableQuantity,
				Err:         domain.ErrInsufficientStock,
			}
		}
		subtotal := domain.LineSubtotal(p.UnitPrice, line.Quantity)
		lines = append(lines, domain.SaleLine{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.UnitPrice,
			Subtotal:  subtotal,
		})
		names[p.ID] = p.Name
		total = total.Add(subtotal)
	}

	if req.AmountTendered.LessThan(total) {
		return domain.Sale{}, nil, nil, fmt.Errorf("tendered %s, total %s: %w", req.AmountTendered, total, domain.ErrInsufficientPayment)
	}

	customerID, err := o.customers.Resolve(ctx, tx, req.CustomerName)
	if err != nil {
		return domain.Sale{}, nil, nil, err
	}

	sale, err := o.ledger.Append(ctx, tx, domain.Sale{
		CustomerID:     customerID,
		CashierID:      req.CashierID,
		TotalAmount:    total,
		AmountTendered: req.AmountTendered,
		ChangeDue:      req.AmountTendered.Sub(total),
		PaymentMethod:  req.PaymentMethod,
	}, lines)
	if err != nil {
		return domain.Sale{}, nil, nil, err
	}

	// Ascending product id keeps row-lock acquisition order the same for
	// every checkout.
	order := make([]domain.SaleLine, len(lines))
	copy(order, lines)
	sort.Slice(order, func(i, j int) bool { return order[i].ProductID < order[j].ProductID })

	remaining := make(map[int64]int64, len(order))
	for _, line := range order {
		left, err := o.inventory.TryDecrement(ctx, tx, line.ProductID, line.Quantity)
		var stockErr *domain.StockError
		switch {
		case errors.As(err, &stockErr):
			return domain.Sale{}, nil, nil, &domain.StockError{
				ProductID:   stockErr.ProductID,
				ProductName: names[line.ProductID],
				Requested:   stockErr.Requested,
				Available:   stockErr.Available,
				Err:         domain.ErrConflict,
			}
		case errors.Is(err, domain.ErrProductNotFound):
			return domain.Sale{}, nil, nil, fmt.Errorf("product %d removed during checkout: %w", line.ProductID, domain.ErrConflict)
		case err != nil:
			return domain.Sale{}, nil, nil, err
		}
		remaining[line.ProductID] = left
	}
	return sale, lines, remaining, nil
}

func (o *Orchestrator) afterCommit(ctx context.Context, sale domain.Sale, lines []domain.SaleLine, remaining map[int64]int64) {
	event := eventbus.NewSaleCompleted(sale, lines, remaining)
	if err := o.publisher.Publish(ctx, o.topic, event); err != nil {
		o.log.Error().Err(err).Int64("sale_id", sale.ID).Str("event_id", event.EventID.String()).Msg("publish sale completed failed")
	}
	if o.catalog != nil {
		if err := o.catalog.Invalidate(ctx); err != nil {
			o.log.Error().Err(err).Int64("sale_id", sale.ID).Msg("catalog cache invalidation failed")
		}
	}
}

// lostRace maps engine-level serialization failures to ErrConflict.
func lostRace(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrConflict)
	}
	return err
}
