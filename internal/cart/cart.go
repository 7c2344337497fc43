// Package cart is the cashier's draft order: product selections bounded by
// the last known stock snapshot, submitted once to the checkout orchestrator.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"kasir/m/domain"
	"kasir/m/internal/checkout"
)

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrNotInCart          = errors.New("product not in cart")
	ErrOutOfStock         = fmt.Errorf("%w: product is out of stock", domain.ErrInsufficientStock)
)

type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateSubmitting
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"empty", "building", "submitting", "completed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Line is one product selection. Available and UnitPrice are advisory copies
// of the last product snapshot the cart saw.
type Line struct {
	ProductID int64        `json:"product_id"`
	Name      string       `json:"name"`
	UnitPrice domain.Money `json:"unit_price"`
	Quantity  int64        `json:"quantity"`
	Available int64        `json:"available_quantity"`
	Subtotal  domain.Money `json:"subtotal"`
}

// Submitter performs the authoritative checkout.
type Submitter interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

type Option func(*Cart)

// RetainOnFailure keeps the lines after a failed checkout so they can be
// edited and resubmitted.
func RetainOnFailure() Option {
	return func(c *Cart) { c.retainOnFailure = true }
}

// Cart is safe for concurrent use. While a checkout is in flight every
// mutation fails with ErrCheckoutInProgress; reads keep working.
type Cart struct {
	cashierID       int64
	submitter       Submitter
	retainOnFailure bool

	mu         sync.Mutex
	state      State
	lines      []Line
	lastResult *checkout.Result
	lastErr    error
}

func New(cashierID int64, submitter Submitter, opts ...Option) *Cart {
	c := &Cart{cashierID: cashierID, submitter: submitter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// View is a consistent snapshot of the cart.
type View struct {
	State      State            `json:"state"`
	Lines      []Line           `json:"lines"`
	Total      domain.Money     `json:"total"`
	LastResult *checkout.Result `json:"last_result,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

func (c *Cart) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:      c.state,
		Lines:      c.copyLines(),
		Total:      c.total(),
		LastResult: c.lastResult,
	}
	if c.lastErr != nil {
		v.LastError = c.lastErr.Error()
	}
	return v
}

func (c *Cart) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLines()
}

// Total is the sum of line subtotals.
func (c *Cart) Total() domain.Money {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total()
}

// AddItem adds qty units of p, merging with an existing line. The merged
// quantity may not exceed p's available quantity; on failure the line is
// left unchanged.
func (c *Cart) AddItem(p domain.Product, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginMutation(); err != nil {
		return err
	}
	if p.AvailableQuantity <= 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrOutOfStock)
	}
	if qty < 1 {
		return fmt.Errorf("add %d of %s: %w", qty, p.Name, domain.ErrInvalidQuantity)
	}

	i := c.index(p.ID)
	want := qty
	if i >= 0 {
		want += c.lines[i].Quantity
	}
	if want > p.AvailableQuantity {
		return &domain.StockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   want,
			Available:   p.AvailableQuantity,
			Err:         domain.ErrInsufficientStock,
		}
	}

	line := Line{ProductID: p.ID, Name: p.Name, UnitPrice: p.UnitPrice, Quantity: want, Available: p.AvailableQuantity}
	line.Subtotal = domain.LineSubtotal(line.UnitPrice, line.Quantity)
	if i >= 0 {
		c.lines[i] = line
	} else {
		c.lines = append(c.lines, line)
	}
	c.state = StateBuilding
	return nil
}

// SetQuantity replaces the quantity of an existing line.
func (c *Cart) SetQuantity(productID, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginMutation(); err != nil {
		return err
	}
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrNotInCart)
	}
	if qty < 1 {
		return fmt.Errorf("set %s to %d: %w", c.lines[i].Name, qty, domain.ErrInvalidQuantity)
	}
	line := &c.lines[i]
	if qty > line.Available {
		return &domain.StockError{
			ProductID:   productID,
			ProductName: line.Name,
			Requested:   qty,
			Available:   line.Available,
			Err:         domain.ErrInsufficientStock,
		}
	}
	line.Quantity = qty
	line.Subtotal = domain.LineSubtotal(line.UnitPrice, qty)
	return nil
}

func (c *Cart) RemoveItem(productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginMutation(); err != nil {
		return err
	}
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrNotInCart)
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	if len(c.lines) == 0 {
		c.state = StateEmpty
	}
	return nil
}

// Refresh replaces the advisory price and stock of lines found in products.
// Quantities are not clamped; the new bounds apply to later edits.
func (c *Cart) Refresh(products []domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for i := range c.lines {
		p, ok := byID[c.lines[i].ProductID]
		if !ok {
			continue
		}
		c.lines[i].Name = p.Name
		c.lines[i].UnitPrice = p.UnitPrice
		c.lines[i].Available = p.AvailableQuantity
		c.lines[i].Subtotal = domain.LineSubtotal(p.UnitPrice, c.lines[i].Quantity)
	}
}

// Checkout submits the cart once. The local total only screens obviously
// short payments; the orchestrator prices the sale authoritatively. On
// success the cart is Completed and empty. On failure it is Failed, the
// lines are cleared unless RetainOnFailure was set, and the orchestrator's
// error is returned unchanged.
func (c *Cart) Checkout(ctx context.Context, customerName string, tendered domain.Money, paymentMethod string) (checkout.Result, error) {
	c.mu.Lock()
	if err := c.beginMutation(); err != nil {
		c.mu.Unlock()
		return checkout.Result{}, err
	}
	if len(c.lines) == 0 {
		c.mu.Unlock()
		return checkout.Result{}, domain.ErrEmptyCart
	}
	if total := c.total(); tendered.LessThan(total) {
		c.mu.Unlock()
		return checkout.Result{}, fmt.Errorf("tendered %s, total %s: %w", tendered, total, domain.ErrInsufficientPayment)
	}

	req := checkout.Request{
		CustomerName:   customerName,
		Lines:          make([]checkout.Line, 0, len(c.lines)),
		AmountTendered: tendered,
		PaymentMethod:  paymentMethod,
		CashierID:      c.cashierID,
	}
	for _, line := range c.lines {
		req.Lines = append(req.Lines, checkout.Line{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	res, err := c.submitter.Checkout(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		if !c.retainOnFailure {
			c.lines = nil
		}
		return checkout.Result{}, err
	}
	c.state = StateCompleted
	c.lastResult = &res
	c.lines = nil
	return res, nil
}

// beginMutation leaves a terminal state before an edit. Callers hold mu.
func (c *Cart) beginMutation() error {
	switch c.state {
	case StateSubmitting:
		return ErrCheckoutInProgress
	case StateCompleted, StateFailed:
		c.lastResult = nil
		c.lastErr = nil
		if len(c.lines) > 0 {
			c.state = StateBuilding
		} else {
			c.state = StateEmpty
		}
	}
	return nil
}

func (c *Cart) index(productID int64) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) total() domain.Money {
	sum := domain.NewMoney(0)
	for _, line := range c.lines {
		sum = sum.Add(line.Subtotal)
	}
	return sum
}

func (c *Cart) copyLines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}
