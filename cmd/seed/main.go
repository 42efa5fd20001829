package main

import (
	"context"
	"log"
	"os"

	"cedar-commerce/internal/config"
	"cedar-commerce/internal/db"
	"cedar-commerce/internal/repository/product"
	"cedar-commerce/internal/seed"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := seed.Apply(ctx, product.NewPostgres(pool, logger), logger); err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Println("seed applied")
}
