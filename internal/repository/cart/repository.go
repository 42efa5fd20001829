package cart

import (
	"context"
	"time"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
)

type CreateCartInput struct {
	CustomerID string
	Profile    domain.ProfileRef
	Currency   string
}

// ItemInput adds Quantity to a line, creating it when absent. PriceAtAddCents is only stored on
// creation.
type ItemInput struct {
	VariantID       string
	ProductID       string
	Quantity        int
	PriceAtAddCents int64
}

// MergeLine is one guest line offered to Merge. Stock is the variant's live stock, used to cap
// the merged quantity.
type MergeLine struct {
	VariantID       string
	ProductID       string
	Quantity        int
	Stock           int
	PriceAtAddCents int64
}

// MergedLine reports the quantity a line ended at. Requested is the uncapped sum.
type MergedLine struct {
	VariantID string
	Requested int
	Merged    int
}

// CappedQuantity is the merged quantity of a line: the sum, capped at the larger of the stock and
// what the cart already held. A merge never lowers an existing line.
func CappedQuantity(existing, added, stock int) int {
	return min(existing+added, max(stock, existing))
}

// ConvertFunc runs inside the conversion transaction after the cart has been claimed. It receives
// the claimed cart with its items and returns the order or quote reference.
type ConvertFunc func(ctx context.Context, tx db.Querier, cart *domain.Cart) (string, error)

type Repository interface {
	GetOrCreateActive(ctx context.Context, in CreateCartInput) (*domain.Cart, error)
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
	GetActive(ctx context.Context, customerID string, profile domain.ProfileRef) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID string, in ItemInput) error
	SetQuantity(ctx context.Context, cartID, variantID string, quantity int) error
	RemoveItem(ctx context.Context, cartID, variantID string) error
	Clear(ctx context.Context, cartID string) error
	SetLock(ctx context.Context, cartID string, until *time.Time) error
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error)
	Convert(ctx context.Context, cartID string, state domain.ConversionState, fn ConvertFunc) (*domain.Cart, error)
	MergeApplied(ctx context.Context, token string) (string, error)
	Merge(ctx context.Context, cartID, token string, lines []MergeLine) ([]MergedLine, bool, error)
}
