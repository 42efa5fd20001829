package domain

import "time"

type ProductStatus string

const (
	ProductActive       ProductStatus = "active"
	ProductDraft        ProductStatus = "draft"
	ProductDiscontinued ProductStatus = "discontinued"
)

type Product struct {
	ID          string                 `json:"id"`
	Handle      string                 `json:"handle"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      ProductStatus          `json:"status"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	Variants    []Variant              `json:"variants,omitempty"`
}

// Variant is the purchasable unit; its price and stock are the source of truth for pricing.
type Variant struct {
	ID            string        `json:"id"`
	ProductID     string        `json:"productId"`
	ProductName   string        `json:"productName,omitempty"`
	ProductStatus ProductStatus `json:"productStatus,omitempty"`
	SKU           string        `json:"sku"`
	Title         string        `json:"title"`
	PriceCents    int64         `json:"priceCents"`
	Currency      string        `json:"currency"`
	Stock         int           `json:"stock"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Sellable reports whether both the variant and its product are on sale.
func (v Variant) Sellable() bool {
	return v.Active && v.ProductStatus == ProductActive
}
