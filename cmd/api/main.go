package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cedar-commerce/internal/checkout"
	"cedar-commerce/internal/config"
	"cedar-commerce/internal/db"
	"cedar-commerce/internal/events"
	"cedar-commerce/internal/httpserver"
	"cedar-commerce/internal/identity"
	"cedar-commerce/internal/pricing"
	cartrepo "cedar-commerce/internal/repository/cart"
	productrepo "cedar-commerce/internal/repository/product"
	quoterepo "cedar-commerce/internal/repository/quote"
	cartsvc "cedar-commerce/internal/service/cart"
	productsvc "cedar-commerce/internal/service/product"
	quotesvc "cedar-commerce/internal/service/quote"
	"cedar-commerce/internal/service/sweep"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	verifier, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatalf("init identity: %v", err)
	}
	orders, err := checkout.New(cfg.OrderServiceURL, cfg.OrderServiceTimeout, logger)
	if err != nil {
		logger.Fatalf("init order client: %v", err)
	}
	publisher := events.Connect(cfg.AMQPURL, logger)
	defer publisher.Close()

	productRepo := productrepo.NewPostgres(dbpool, logger)
	productService := productsvc.New(productRepo, cfg.CatalogTimeout)
	cartRepo := cartrepo.NewPostgres(dbpool, logger)
	quoteRepo := quoterepo.NewPostgres(dbpool, logger)

	rules := pricing.RulesFromConfig(cfg.Pricing)
	policy := pricing.PolicyFromConfig(cfg.Pricing)
	deriver := pricing.NewDeriver(productService, rules, policy, pricing.Options{
		Concurrency: cfg.CatalogConcurrency,
		Timeout:     cfg.CatalogTimeout,
		Logger:      logger,
	})

	cartService := cartsvc.New(cartsvc.Deps{
		Carts:   cartRepo,
		Quotes:  quoteRepo,
		Catalog: productService,
		Deriver: deriver,
		Orders:  orders,
		Events:  publisher,
	}, cartsvc.Options{
		Currency:          cfg.Pricing.Currency,
		LockTTL:           cfg.CheckoutLockTTL,
		QuoteValidity:     cfg.QuoteValidity,
		GuestCartMaxItems: cfg.GuestCartMaxItems,
		Logger:            logger,
	})
	quoteService := quotesvc.New(quoteRepo, rules, policy, orders, publisher, logger)
	sweeper := sweep.New(quoteService, cartService, quotesvc.DefaultSweepBatch, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		ProductSvc:     productService,
		CartSvc:        cartService,
		QuoteSvc:       quoteService,
		Sweeper:        sweeper,
		Auth:           verifier,
		Prices:         policy,
		CronSecretHash: cfg.CronSecretHash,
		CORSOrigins:    cfg.CORSAllowOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
