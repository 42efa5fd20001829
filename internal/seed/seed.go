package seed

import (
	"context"
	"fmt"
	"io"
	"log"

	"cedar-commerce/internal/domain"
)

// CatalogWriter is satisfied by the product repository.
type CatalogWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
}

type variantSeed struct {
	SKU        string
	Title      string
	PriceCents int64
	Stock      int
}

type productSeed struct {
	Handle      string
	Name        string
	Description string
	Attributes  map[string]interface{}
	Variants    []variantSeed
}

// Catalog is the demo elevator-parts catalog, priced in paise.
var Catalog = []productSeed{
	{
		Handle:      "landing-door-operator",
		Name:        "Landing Door Operator",
		Description: "VVVF automatic door operator for centre-opening landing doors",
		Attributes:  map[string]interface{}{"category": "doors", "warrantyMonths": 24},
		Variants: []variantSeed{
			{SKU: "LDO-800", Title: "800 mm opening", PriceCents: 4500000, Stock: 6},
			{SKU: "LDO-900", Title: "900 mm opening", PriceCents: 4825000, Stock: 2},
		},
	},
	{
		Handle:      "hoist-rope",
		Name:        "Hoist Rope",
		Description: "8x19 steel wire rope, sold per 10 m coil",
		Attributes:  map[string]interface{}{"category": "ropes"},
		Variants: []variantSeed{
			{SKU: "HR-8", Title: "8 mm", PriceCents: 120000, Stock: 40},
			{SKU: "HR-10", Title: "10 mm", PriceCents: 165000, Stock: 4},
		},
	},
	{
		Handle:      "car-operating-panel",
		Name:        "Car Operating Panel",
		Description: "Stainless steel COP with braille push buttons",
		Attributes:  map[string]interface{}{"category": "fixtures"},
		Variants: []variantSeed{
			{SKU: "COP-8", Title: "8 floors", PriceCents: 2250000, Stock: 3},
			{SKU: "COP-16", Title: "16 floors", PriceCents: 3100000, Stock: 0},
		},
	},
	{
		Handle:      "overload-sensor",
		Name:        "Overload Sensor",
		Description: "Load weighing sensor for car top installation",
		Attributes:  map[string]interface{}{"category": "safety"},
		Variants: []variantSeed{
			{SKU: "OLS-1000", Title: "Up to 1000 kg", PriceCents: 950000, Stock: 12},
		},
	},
}

// Apply upserts the demo catalog. It is idempotent: products key on handle and variants on sku.
func Apply(ctx context.Context, repo CatalogWriter, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	for _, p := range Catalog {
		saved, err := repo.Upsert(ctx, domain.Product{
			Handle:      p.Handle,
			Name:        p.Name,
			Description: p.Description,
			Status:      domain.ProductActive,
			Attributes:  p.Attributes,
		})
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Handle, err)
		}
		for _, v := range p.Variants {
			_, err := repo.UpsertVariant(ctx, domain.Variant{
				ProductID:  saved.ID,
				SKU:        v.SKU,
				Title:      v.Title,
				PriceCents: v.PriceCents,
				Currency:   "INR",
				Stock:      v.Stock,
				Active:     true,
			})
			if err != nil {
				return fmt.Errorf("upsert variant %s: %w", v.SKU, err)
			}
		}
		logger.Printf("seed: product handle=%s variants=%d", p.Handle, len(p.Variants))
	}
	return nil
}
