package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"kasir/m/internal/api"
	"kasir/m/internal/cache"
	"kasir/m/internal/cart"
	"kasir/m/internal/checkout"
	"kasir/m/internal/config"
	"kasir/m/internal/customers"
	"kasir/m/internal/database"
	"kasir/m/internal/eventbus"
	"kasir/m/internal/inventory"
	"kasir/m/internal/ledger"
	"kasir/m/internal/migrations"
	"kasir/m/internal/reporting"
	"kasir/m/internal/seed"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	log.Info().Str("app", cfg.AppName).Str("driver", cfg.DBDriver).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	if _, err := seed.Admin(ctx, db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to create admin account")
	}
	if cfg.SeedProducts != "" {
		if _, err := seed.Products(ctx, db, cfg.SeedProducts); err != nil {
			log.Warn().Err(err).Msg("product catalog not seeded")
		}
	}

	var publisher eventbus.Publisher = eventbus.Nop{}
	if cfg.RabbitMQURL != "" {
		rmq, err := eventbus.NewRabbitMQ(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, sale events disabled")
		} else {
			publisher = rmq
		}
	}
	defer publisher.Close()

	var catalog cache.Catalog = cache.Nop{}
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(cfg.RedisURL, cfg.CatalogCacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("invalid REDIS_URL, catalog cache disabled")
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := r.Ping(pingCtx); err != nil {
				log.Warn().Err(err).Msg("redis not reachable yet, catalog reads will fall back to the database")
			}
			cancel()
			defer r.Close()
			catalog = r
		}
	}

	inv := inventory.New(db)
	cust := customers.New(db)
	led := ledger.New(db, cfg.Location)
	orch := checkout.New(db, inv, cust, led,
		checkout.WithPublisher(publisher, cfg.SaleCompletedTopic),
		checkout.WithCatalogCache(catalog),
	)

	var cartOpts []cart.Option
	if cfg.CartRetainOnFailure {
		cartOpts = append(cartOpts, cart.RetainOnFailure())
	}

	handler := api.New(api.Deps{
		DB:        db,
		Secret:    cfg.Secret,
		TokenTTL:  cfg.TokenTTL,
		Location:  cfg.Location,
		Inventory: inv,
		Customers: cust,
		Ledger:    led,
		Checkout:  orch,
		Carts:     cart.NewRegistry(orch, cartOpts...),
		Reports: reporting.New(db, led, inv, cfg.Location, reporting.Options{
			LowStock: inventory.LowStockOptions{
				Threshold: cfg.LowStockThreshold,
				Limit:     cfg.LowStockLimit,
				Order:     cfg.LowStockOrder,
			},
			RecentSalesLimit: cfg.RecentSalesLimit,
		}),
		Catalog:        catalog,
		LoginPerMinute: cfg.LoginRatePerMinute,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("kasir POS server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
