package domain

import (
	"errors"
	"fmt"
)

// Business-rule failures. None of these are retried automatically.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrSaleNotFound        = errors.New("sale not found")

	// ErrConflict is the decrement-time variant of ErrInsufficientStock: a
	// concurrent checkout consumed the stock after it was validated.
	ErrConflict = fmt.Errorf("%w: stock taken by a concurrent checkout", ErrInsufficientStock)
)

// StockError names the product a stock failure is about. It unwraps to
// ErrInsufficientStock or ErrConflict.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int64
	Available   int64
	Err         error
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("#%d", e.ProductID)
	}
	if errors.Is(e.Err, ErrConflict) {
		return fmt.Sprintf("stock for product %s changed during checkout (requested %d), refresh and retry", name, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s (requested %d, available %d)", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return e.Err }

// IsBusinessError reports whether err is a user-visible rule failure rather
// than a storage or infrastructure failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrProductNotFound,
		ErrInsufficientStock,
		ErrInvalidQuantity,
		ErrEmptyCart,
		ErrInsufficientPayment,
		ErrSaleNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
