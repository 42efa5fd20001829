package pricing

import (
	"cedar-commerce/internal/config"
	"cedar-commerce/internal/domain"
	"github.com/shopspring/decimal"
)

// Rules are the storefront's order-level price adjustments. All results are whole minor units,
// rounded half-up.
type Rules struct {
	TaxRate                    decimal.Decimal
	BusinessDiscountRate       decimal.Decimal
	ShippingFlatCents          int64
	FreeShippingThresholdCents int64
}

func RulesFromConfig(cfg config.Pricing) Rules {
	return Rules{
		TaxRate:                    cfg.TaxRate,
		BusinessDiscountRate:       cfg.BusinessDiscountRate,
		ShippingFlatCents:          cfg.ShippingFlatCents,
		FreeShippingThresholdCents: cfg.FreeShippingThresholdCents,
	}
}

func applyRate(cents int64, rate decimal.Decimal) int64 {
	if cents == 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}

// Discount is the account-level discount; only verified business accounts receive one.
func (r Rules) Discount(subtotal int64, user domain.UserContext) int64 {
	if !user.IsVerifiedBusiness() {
		return 0
	}
	return applyRate(subtotal, r.BusinessDiscountRate)
}

func (r Rules) Tax(taxable int64) int64 {
	return applyRate(taxable, r.TaxRate)
}

// Shipping charges the flat fee on non-empty orders below the free-shipping threshold. A
// threshold of zero disables free shipping.
func (r Rules) Shipping(taxable int64) int64 {
	if taxable <= 0 {
		return 0
	}
	if r.FreeShippingThresholdCents > 0 && taxable >= r.FreeShippingThresholdCents {
		return 0
	}
	return r.ShippingFlatCents
}

// QuoteTotals sums frozen quote lines. Line discounts are already inside each line total, so the
// discount total is the gap between gross and net lines.
func (r Rules) QuoteTotals(items []domain.QuoteItem) domain.QuoteTotals {
	var gross, net int64
	for _, it := range items {
		gross += it.GrossCents()
		net += it.LineTotalCents
	}
	t := domain.QuoteTotals{
		SubtotalCents: gross,
		DiscountCents: gross - net,
	}
	t.TaxCents = r.Tax(net)
	t.ShippingCents = r.Shipping(net)
	t.TotalCents = t.SubtotalCents - t.DiscountCents + t.TaxCents + t.ShippingCents
	return t
}
