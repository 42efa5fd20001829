package product

import (
	"context"

	"cedar-commerce/internal/domain"
)

// Repository is the catalog store. It is the source of truth for variant price, stock and status.
type Repository interface {
	List(ctx context.Context, status domain.ProductStatus) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	SetStock(ctx context.Context, variantID string, stock int) error
	SetPrice(ctx context.Context, variantID string, priceCents int64) error
}
