package main

import (
	"context"
	"log"
	"os"

	"cedar-commerce/internal/checkout"
	"cedar-commerce/internal/config"
	"cedar-commerce/internal/db"
	"cedar-commerce/internal/events"
	"cedar-commerce/internal/pricing"
	cartrepo "cedar-commerce/internal/repository/cart"
	quoterepo "cedar-commerce/internal/repository/quote"
	cartsvc "cedar-commerce/internal/service/cart"
	quotesvc "cedar-commerce/internal/service/quote"
	"cedar-commerce/internal/service/sweep"
)

// sweep runs quote expiry and lock release once, for environments without an HTTP cron.
func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout*6)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	orders, err := checkout.New(cfg.OrderServiceURL, cfg.OrderServiceTimeout, logger)
	if err != nil {
		logger.Fatalf("init order client: %v", err)
	}

	publisher := events.Connect(cfg.AMQPURL, logger)
	defer publisher.Close()

	quotes := quotesvc.New(quoterepo.NewPostgres(pool, logger), pricing.RulesFromConfig(cfg.Pricing), pricing.PolicyFromConfig(cfg.Pricing), orders, publisher, logger)
	carts := cartsvc.New(cartsvc.Deps{Carts: cartrepo.NewPostgres(pool, logger)}, cartsvc.Options{Logger: logger})

	res, err := sweep.New(quotes, carts, quotesvc.DefaultSweepBatch, logger).Run(ctx)
	if err != nil {
		logger.Fatalf("sweep: %v", err)
	}
	logger.Printf("sweep complete expired_quotes=%d released_locks=%d", res.ExpiredQuotes, res.ReleasedLocks)
}
