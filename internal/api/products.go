package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	var version uint64
	if query == "" {
		products, v, ok := h.catalog.Get(r.Context())
		if ok {
			respondJSON(w, http.StatusOK, products)
			return
		}
		version = v
	}

	products, err := h.inventory.List(r.Context(), query)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	if query == "" {
		h.catalog.Set(r.Context(), version, products)
	}
	respondJSON(w, http.StatusOK, products)
}

type restockRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *Handler) restockProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req restockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	qty, err := h.inventory.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	if err := h.catalog.Invalidate(r.Context()); err != nil {
		h.log.Warn().Err(err).Int64("product_id", id).Msg("catalog cache invalidation failed")
	}
	h.log.Info().Int64("product_id", id).Int64("added", req.Quantity).Int64("quantity", qty).
		Int64("by", cashierFrom(r.Context()).ID).Msg("product restocked")
	respondJSON(w, http.StatusOK, map[string]int64{"id": id, "available_quantity": qty})
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := h.customers.List(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}
