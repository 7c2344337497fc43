package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kasir/m/domain"
	"kasir/m/internal/cart"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// failure maps err to a status and a machine-readable code. Unknown errors
// are internal.
func failure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, cart.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, cart.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrSaleNotFound):
		return http.StatusNotFound, "sale_not_found"
	case errors.Is(err, cart.ErrNotInCart):
		return http.StatusNotFound, "not_in_cart"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "invalid_quantity"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, domain.ErrInsufficientPayment):
		return http.StatusUnprocessableEntity, "insufficient_payment"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, ""
	}
}

// respondFailure reports business failures verbatim and hides everything else
// behind a generic message.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := failure(err)
	switch status {
	case http.StatusGatewayTimeout, http.StatusServiceUnavailable:
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request abandoned")
		respondJSON(w, status, errorResponse{Error: "request " + code, Code: code})
		return
	case http.StatusInternalServerError:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
