// Package eventbus publishes domain events for downstream consumers such as
// reporting and stock alerting.
package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kasir/m/domain"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// SaleCompleted is emitted once per committed sale.
type SaleCompleted struct {
	EventID    uuid.UUID           `json:"event_id"`
	SaleID     int64               `json:"sale_id"`
	CashierID  int64               `json:"cashier_id"`
	CustomerID int64               `json:"customer_id"`
	Total      domain.Money        `json:"total"`
	Lines      []SaleCompletedLine `json:"lines"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type SaleCompletedLine struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int64 `json:"quantity"`
	RemainingStock int64 `json:"remaining_stock"`
}

// NewSaleCompleted builds the event for a committed sale. remaining maps
// product id to the quantity left after the sale's decrement.
func NewSaleCompleted(sale domain.Sale, lines []domain.SaleLine, remaining map[int64]int64) SaleCompleted {
	event := SaleCompleted{
		EventID:    uuid.New(),
		SaleID:     sale.ID,
		CashierID:  sale.CashierID,
		CustomerID: sale.CustomerID,
		Total:      sale.TotalAmount,
		Lines:      make([]SaleCompletedLine, 0, len(lines)),
		OccurredAt: sale.CreatedAt,
	}
	for _, line := range lines {
		event.Lines = append(event.Lines, SaleCompletedLine{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			RemainingStock: remaining[line.ProductID],
		})
	}
	return event
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

func (Nop) Close() error { return nil }
