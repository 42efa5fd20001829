package domain

import "github.com/shopspring/decimal"

type UnavailableReason string

const (
	ReasonDeleted                UnavailableReason = "deleted"
	ReasonOutOfStock             UnavailableReason = "out_of_stock"
	ReasonDiscontinued           UnavailableReason = "discontinued"
	ReasonTemporarilyUnavailable UnavailableReason = "temporarily_unavailable"
)

type PriceDirection string

const (
	PriceIncrease PriceDirection = "increase"
	PriceDecrease PriceDirection = "decrease"
)

// PriceChange compares the price recorded at add time with the freshly derived one.
type PriceChange struct {
	Direction     PriceDirection  `json:"direction"`
	Percent       decimal.Decimal `json:"percent"`
	PreviousCents int64           `json:"previousCents"`
	CurrentCents  int64           `json:"currentCents"`
}

// DerivedCartItem is recomputed from the live catalog on every read and never persisted.
type DerivedCartItem struct {
	ItemID            string            `json:"itemId"`
	VariantID         string            `json:"variantId"`
	ProductID         string            `json:"productId"`
	SKU               string            `json:"sku,omitempty"`
	Title             string            `json:"title,omitempty"`
	Quantity          int               `json:"quantity"`
	BillableQuantity  int               `json:"billableQuantity"`
	AvailableQuantity int               `json:"availableQuantity"`
	UnitPriceCents    int64             `json:"unitPriceCents"`
	PriceAtAddCents   int64             `json:"priceAtAddCents"`
	SubtotalCents     int64             `json:"subtotalCents"`
	IsAvailable       bool              `json:"isAvailable"`
	StockAvailable    bool              `json:"stockAvailable"`
	UnavailableReason UnavailableReason `json:"unavailableReason,omitempty"`
	PriceChange       *PriceChange      `json:"priceChange,omitempty"`
}

// Billable reports whether the item contributes to totals.
func (i DerivedCartItem) Billable() bool {
	return i.IsAvailable && i.BillableQuantity > 0
}

type CartSummary struct {
	CartID        string            `json:"cartId"`
	Currency      string            `json:"currency"`
	Items         []DerivedCartItem `json:"items"`
	ItemCount     int               `json:"itemCount"`
	SubtotalCents int64             `json:"subtotalCents"`
	DiscountCents int64             `json:"discountTotalCents"`
	TaxCents      int64             `json:"taxTotalCents"`
	ShippingCents int64             `json:"shippingTotalCents"`
	TotalCents    int64             `json:"totalCents"`
	PricesVisible bool              `json:"pricesVisible"`
}

// Balanced checks total == subtotal - discount + tax + shipping.
func (s CartSummary) Balanced() bool {
	return s.TotalCents == s.SubtotalCents-s.DiscountCents+s.TaxCents+s.ShippingCents
}

func (s CartSummary) BillableItems() []DerivedCartItem {
	out := make([]DerivedCartItem, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Billable() {
			out = append(out, it)
		}
	}
	return out
}
