package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"kasir/m/domain"
	"kasir/m/internal/cache"
	"kasir/m/internal/cart"
	"kasir/m/internal/customers"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
	"kasir/m/internal/reporting"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	DB        *sqlx.DB
	Secret    string
	TokenTTL  time.Duration
	Location  *time.Location
	Inventory *inventory.Store
	Customers *customers.Store
	Ledger    *ledger.Ledger
	Checkout  cart.Submitter
	Carts     *cart.Registry
	Reports   *reporting.Service
	Catalog   cache.Catalog
	// LoginPerMinute bounds login attempts across all clients; 0 disables.
	LoginPerMinute int
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db        *sqlx.DB
	secret    string
	tokenTTL  time.Duration
	loc       *time.Location
	inventory *inventory.Store
	customers *customers.Store
	ledger    *ledger.Ledger
	checkout  cart.Submitter
	carts     *cart.Registry
	reports   *reporting.Service
	catalog   cache.Catalog
	limiter   *rate.Limiter
	log       zerolog.Logger
}

func New(d Deps) *Handler {
	h := &Handler{
		db:        d.DB,
		secret:    d.Secret,
		tokenTTL:  d.TokenTTL,
		loc:       d.Location,
		inventory: d.Inventory,
		customers: d.Customers,
		ledger:    d.Ledger,
		checkout:  d.Checkout,
		carts:     d.Carts,
		reports:   d.Reports,
		catalog:   d.Catalog,
		log:       log.With().Str("component", "api").Logger(),
	}
	if h.tokenTTL <= 0 {
		h.tokenTTL = 24 * time.Hour
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.catalog == nil {
		h.catalog = cache.Nop{}
	}
	if d.LoginPerMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(d.LoginPerMinute)), d.LoginPerMinute)
	}
	return h
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.With(h.throttleLogin).Post("/auth/login", h.login)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.With(requireLevel(domain.LevelAdmin)).Post("/{id}/restock", h.restockProduct)
		})

		pr.Get("/customers", h.listCustomers)

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
			r.Get("/{id}", h.getSale)
		})

		pr.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.discardCart)
			r.Post("/refresh", h.refreshCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{productID}", h.setCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
			r.Post("/checkout", h.checkoutCart)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/daily", h.dailyReport)
			r.Get("/dashboard", h.dashboard)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
