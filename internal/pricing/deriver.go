package pricing

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"cedar-commerce/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Catalog is the live source of variant price, stock and status.
type Catalog interface {
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
}

type Options struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *log.Logger
}

// Deriver recomputes cart prices from the catalog on every call. It holds no state between calls.
type Deriver struct {
	catalog     Catalog
	rules       Rules
	policy      Policy
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

func NewDeriver(catalog Catalog, rules Rules, policy Policy, opts Options) *Deriver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Deriver{
		catalog:     catalog,
		rules:       rules,
		policy:      policy,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
}

func (d *Deriver) Policy() Policy {
	return d.policy
}

func (d *Deriver) Rules() Rules {
	return d.rules
}

// Derive returns the summary as the caller may see it: redacted when the visibility policy hides
// prices from this user.
func (d *Deriver) Derive(ctx context.Context, cart *domain.Cart, user domain.UserContext) domain.CartSummary {
	summary := d.DeriveInternal(ctx, cart, user)
	if !d.policy.CanSeePrice(user) {
		return Redact(summary)
	}
	return summary
}

// DeriveInternal always carries full prices. It is used for checkout and quote snapshots.
func (d *Deriver) DeriveInternal(ctx context.Context, cart *domain.Cart, user domain.UserContext) domain.CartSummary {
	items := d.DeriveItems(ctx, cart.Currency, cart.Items)

	summary := domain.CartSummary{
		CartID:        cart.ID,
		Currency:      cart.Currency,
		Items:         items,
		PricesVisible: true,
	}
	for _, it := range items {
		if !it.Billable() {
			continue
		}
		summary.SubtotalCents += it.SubtotalCents
		summary.ItemCount += it.BillableQuantity
	}
	summary.DiscountCents = d.rules.Discount(summary.SubtotalCents, user)
	taxable := summary.SubtotalCents - summary.DiscountCents
	summary.TaxCents = d.rules.Tax(taxable)
	summary.ShippingCents = d.rules.Shipping(taxable)
	summary.TotalCents = taxable + summary.TaxCents + summary.ShippingCents
	return summary
}

// DeriveItems looks up every line concurrently. A failed lookup degrades that line only.
func (d *Deriver) DeriveItems(ctx context.Context, currency string, items []domain.CartItem) []domain.DerivedCartItem {
	out := make([]domain.DerivedCartItem, len(items))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, item := range items {
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			variant, err := d.catalog.GetVariant(lookupCtx, item.VariantID)
			out[i] = d.deriveItem(currency, item, variant, err)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Deriver) deriveItem(currency string, item domain.CartItem, variant *domain.Variant, err error) domain.DerivedCartItem {
	res := domain.DerivedCartItem{
		ItemID:          item.ID,
		VariantID:       item.VariantID,
		ProductID:       item.ProductID,
		Quantity:        item.Quantity,
		PriceAtAddCents: item.PriceAtAddCents,
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.UnavailableReason = domain.ReasonDeleted
		return res
	case err != nil:
		d.logger.Printf("pricing: variant lookup variant_id=%s error=%v", item.VariantID, err)
		res.UnavailableReason = domain.ReasonTemporarilyUnavailable
		return res
	case variant == nil:
		res.UnavailableReason = domain.ReasonDeleted
		return res
	}

	res.SKU = variant.SKU
	res.Title = variant.Title
	res.UnitPriceCents = variant.PriceCents
	res.AvailableQuantity = variant.Stock
	if variant.ProductID != "" {
		res.ProductID = variant.ProductID
	}

	switch {
	case variant.ProductStatus == domain.ProductDiscontinued:
		res.UnavailableReason = domain.ReasonDiscontinued
	case !variant.Sellable():
		res.UnavailableReason = domain.ReasonTemporarilyUnavailable
	case currency != "" && variant.Currency != "" && variant.Currency != currency:
		d.logger.Printf("pricing: currency mismatch variant_id=%s variant=%s cart=%s", variant.ID, variant.Currency, currency)
		res.UnavailableReason = domain.ReasonTemporarilyUnavailable
	case variant.Stock <= 0:
		res.UnavailableReason = domain.ReasonOutOfStock
	}
	if res.UnavailableReason != "" {
		res.PriceChange = priceChange(item.PriceAtAddCents, variant.PriceCents)
		return res
	}

	res.IsAvailable = true
	res.StockAvailable = item.Quantity <= variant.Stock
	res.BillableQuantity = min(item.Quantity, variant.Stock)
	res.SubtotalCents = variant.PriceCents * int64(res.BillableQuantity)
	res.PriceChange = priceChange(item.PriceAtAddCents, variant.PriceCents)
	return res
}

var hundred = decimal.NewFromInt(100)

func priceChange(previous, current int64) *domain.PriceChange {
	if previous <= 0 || previous == current {
		return nil
	}
	pc := &domain.PriceChange{
		Direction:     domain.PriceIncrease,
		PreviousCents: previous,
		CurrentCents:  current,
	}
	if current < previous {
		pc.Direction = domain.PriceDecrease
	}
	delta := decimal.NewFromInt(current - previous).Abs()
	pc.Percent = delta.Mul(hundred).Div(decimal.NewFromInt(previous)).Round(2)
	return pc
}

// Redact strips every money figure while keeping availability, so price-blind callers still see
// which lines need attention.
func Redact(s domain.CartSummary) domain.CartSummary {
	items := make([]domain.DerivedCartItem, len(s.Items))
	for i, it := range s.Items {
		it.UnitPriceCents = 0
		it.PriceAtAddCents = 0
		it.SubtotalCents = 0
		it.PriceChange = nil
		items[i] = it
	}
	s.Items = items
	s.SubtotalCents = 0
	s.DiscountCents = 0
	s.TaxCents = 0
	s.ShippingCents = 0
	s.TotalCents = 0
	s.PricesVisible = false
	return s
}

// RedactQuote zeroes the quote's money figures. Quantities and line discounts stay visible.
func RedactQuote(q domain.Quote) domain.Quote {
	items := make([]domain.QuoteItem, len(q.Items))
	for i, it := range q.Items {
		it.UnitPriceCents = 0
		it.LineTotalCents = 0
		items[i] = it
	}
	q.Items = items
	q.QuoteTotals = domain.QuoteTotals{}
	return q
}
