package checkout

import "cedar-commerce/internal/domain"

// FromCart builds the order snapshot from a freshly derived summary. Only billable lines are sent,
// at their billable quantity.
func FromCart(cart *domain.Cart, s domain.CartSummary) Snapshot {
	lines := make([]Line, 0, len(s.Items))
	for _, it := range s.BillableItems() {
		lines = append(lines, Line{
			VariantID:      it.VariantID,
			ProductID:      it.ProductID,
			SKU:            it.SKU,
			Title:          it.Title,
			Quantity:       it.BillableQuantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.SubtotalCents,
		})
	}
	return Snapshot{
		Reference:     cart.ID,
		CustomerID:    cart.CustomerID,
		Profile:       cart.Profile,
		Currency:      cart.Currency,
		Lines:         lines,
		SubtotalCents: s.SubtotalCents,
		DiscountCents: s.DiscountCents,
		TaxCents:      s.TaxCents,
		ShippingCents: s.ShippingCents,
		TotalCents:    s.TotalCents,
	}
}

// FromQuote builds the snapshot for a quote's draft order at the negotiated prices.
func FromQuote(q *domain.Quote) Snapshot {
	lines := make([]Line, 0, len(q.Items))
	for _, it := range q.Items {
		var discount *string
		if it.DiscountPercent != nil {
			d := it.DiscountPercent.StringFixed(2)
			discount = &d
		}
		lines = append(lines, Line{
			VariantID:       it.VariantID,
			ProductID:       it.ProductID,
			SKU:             it.SKU,
			Title:           it.Title,
			Quantity:        it.Quantity,
			UnitPriceCents:  it.UnitPriceCents,
			DiscountPercent: discount,
			LineTotalCents:  it.LineTotalCents,
		})
	}
	ref := q.ID
	if ref == "" {
		ref = "cart-" + q.CartID
	}
	return Snapshot{
		Reference:     ref,
		CustomerID:    q.CustomerID,
		Profile:       q.Profile,
		Currency:      q.Currency,
		Lines:         lines,
		SubtotalCents: q.SubtotalCents,
		DiscountCents: q.DiscountCents,
		TaxCents:      q.TaxCents,
		ShippingCents: q.ShippingCents,
		TotalCents:    q.TotalCents,
	}
}
