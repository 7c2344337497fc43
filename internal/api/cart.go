package api

import (
	"net/http"

	"kasir/m/domain"
)

type cartItemRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  *int64 `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

type cartCheckoutRequest struct {
	CustomerName   string       `json:"customer_name"`
	AmountTendered domain.Money `json:"amount_tendered"`
	PaymentMethod  string       `json:"payment_method"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.carts.For(cashierFrom(r.Context()).ID).View())
}

func (h *Handler) discardCart(w http.ResponseWriter, r *http.Request) {
	h.carts.Drop(cashierFrom(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refreshCart(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.List(r.Context(), "")
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	c := h.carts.For(cashierFrom(r.Context()).ID)
	c.Refresh(products)
	respondJSON(w, http.StatusOK, c.View())
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	qty := int64(1)
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	// The cart bounds quantities by the freshest snapshot we can give it.
	p, err := h.inventory.Product(r.Context(), req.ProductID)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	c := h.carts.For(cashierFrom(r.Context()).ID)
	if err := c.AddItem(p, qty); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req cartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := h.carts.For(cashierFrom(r.Context()).ID)
	if err := c.SetQuantity(productID, req.Quantity); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	c := h.carts.For(cashierFrom(r.Context()).ID)
	if err := c.RemoveItem(productID); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (h *Handler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	var req cartCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := h.carts.For(cashierFrom(r.Context()).ID)
	res, err := c.Checkout(r.Context(), req.CustomerName, req.AmountTendered, req.PaymentMethod)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
