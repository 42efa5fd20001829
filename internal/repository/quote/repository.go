package quote

import (
	"context"
	"time"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
)

// UpdateFunc mutates a locked quote inside the update transaction. tx may be used for work that
// must commit or roll back together with the quote.
type UpdateFunc func(ctx context.Context, tx db.Querier, q *domain.Quote) error

// Expired describes one quote moved to expired by a sweep.
type Expired struct {
	ID         string
	CustomerID string
	From       domain.QuoteStatus
}

type Repository interface {
	CreateWith(ctx context.Context, tx db.Querier, q *domain.Quote) (*domain.Quote, error)
	GetByID(ctx context.Context, id string) (*domain.Quote, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Quote, error)
	ListByStatus(ctx context.Context, status domain.QuoteStatus) ([]domain.Quote, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Quote, error)
	ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]Expired, error)
}
