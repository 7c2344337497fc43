package cart

import "sync"

// Registry holds one cart per cashier.
type Registry struct {
	submitter Submitter
	opts      []Option

	mu    sync.Mutex
	carts map[int64]*Cart
}

func NewRegistry(submitter Submitter, opts ...Option) *Registry {
	return &Registry{submitter: submitter, opts: opts, carts: make(map[int64]*Cart)}
}

// For returns the cashier's cart, creating an empty one on first use.
func (r *Registry) For(cashierID int64) *Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cashierID]
	if !ok {
		c = New(cashierID, r.submitter, r.opts...)
		r.carts[cashierID] = c
	}
	return c
}

// Drop forgets the cashier's cart, e.g. on logout.
func (r *Registry) Drop(cashierID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, cashierID)
}
