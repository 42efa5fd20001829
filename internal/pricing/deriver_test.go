package pricing

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cedar-commerce/internal/domain"
	"github.com/shopspring/decimal"
)

type stubCatalog struct {
	variants map[string]domain.Variant
	errs     map[string]error
}

func (s *stubCatalog) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	v, ok := s.variants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func variant(id string, price int64, stock int) domain.Variant {
	return domain.Variant{
		ID:            id,
		ProductID:     "p-" + id,
		ProductStatus: domain.ProductActive,
		SKU:           "SKU-" + id,
		PriceCents:    price,
		Currency:      "INR",
		Stock:         stock,
		Active:        true,
	}
}

var (
	individual    = domain.UserContext{UserID: "u1", AccountType: domain.AccountIndividual}
	verifiedB2B   = domain.UserContext{UserID: "u2", AccountType: domain.AccountBusiness, Verified: true, BusinessProfileID: "b1"}
	defaultPolicy = Policy{HideForGuests: true, HideForUnverifiedBusiness: true}
)

func TestDerive_PriceChangeScenario(t *testing.T) {
	catalog := &stubCatalog{variants: map[string]domain.Variant{"v1": variant("v1", 50000, 10)}}
	d := NewDeriver(catalog, Rules{}, defaultPolicy, Options{})
	cart := &domain.Cart{ID: "c1", Currency: "INR", Items: []domain.CartItem{
		{ID: "i1", VariantID: "v1", Quantity: 2, PriceAtAddCents: 50000},
	}}

	first := d.Derive(context.Background(), cart, individual)
	if first.SubtotalCents != 100000 {
		t.Fatalf("first subtotal = %d, want 100000", first.SubtotalCents)
	}
	if first.Items[0].PriceChange != nil {
		t.Fatalf("unexpected price change %+v", first.Items[0].PriceChange)
	}

	catalog.variants["v1"] = variant("v1", 60000, 10)
	second := d.Derive(context.Background(), cart, individual)
	if second.SubtotalCents != 120000 {
		t.Fatalf("second subtotal = %d, want 120000", second.SubtotalCents)
	}
	pc := second.Items[0].PriceChange
	if pc == nil || pc.Direction != domain.PriceIncrease || !pc.Percent.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("price change = %+v, want 20%% increase", pc)
	}
	if cart.Items[0].PriceAtAddCents != 50000 {
		t.Fatalf("derive must not touch stored items")
	}
}

func TestDerive_SummaryBalancesAndIsDeterministic(t *testing.T) {
	catalog := &stubCatalog{variants: map[string]domain.Variant{
		"v1": variant("v1", 33333, 5),
		"v2": variant("v2", 1999, 100),
		"v3": variant("v3", 70001, 1),
	}}
	rules := Rules{
		TaxRate:                    decimal.RequireFromString("0.18"),
		BusinessDiscountRate:       decimal.RequireFromString("0.05"),
		ShippingFlatCents:          15000,
		FreeShippingThresholdCents: 10000000,
	}
	d := NewDeriver(catalog, rules, defaultPolicy, Options{Concurrency: 2})
	cart := &domain.Cart{ID: "c1", Currency: "INR", Items: []domain.CartItem{
		{VariantID: "v1", Quantity: 3},
		{VariantID: "v2", Quantity: 7},
		{VariantID: "v3", Quantity: 4},
		{VariantID: "gone", Quantity: 1},
	}}

	for _, user := range []domain.UserContext{individual, verifiedB2B} {
		a := d.Derive(context.Background(), cart, user)
		b := d.Derive(context.Background(), cart, user)
		if !a.Balanced() {
			t.Fatalf("summary does not balance: %+v", a)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("derive not deterministic:\n%+v\n%+v", a, b)
		}
		// 3*33333 + 7*1999 + 1*70001 (capped)
		if a.SubtotalCents != 99999+13993+70001 {
			t.Fatalf("subtotal = %d", a.SubtotalCents)
		}
		if a.ShippingCents != 15000 {
			t.Fatalf("shipping = %d", a.ShippingCents)
		}
	}

	b2b := d.Derive(context.Background(), cart, verifiedB2B)
	// 5% of 183993 = 9199.65 -> 9200
	if b2b.DiscountCents != 9200 {
		t.Fatalf("discount = %d", b2b.DiscountCents)
	}
	// 18% of 174793 = 31462.74 -> 31463
	if b2b.TaxCents != 31463 {
		t.Fatalf("tax = %d", b2b.TaxCents)
	}
	if ind := d.Derive(context.Background(), cart, individual); ind.DiscountCents != 0 {
		t.Fatalf("individuals get no business discount, got %d", ind.DiscountCents)
	}
}

func TestDerive_CapsToStock(t *testing.T) {
	catalog := &stubCatalog{variants: map[string]domain.Variant{"v1": variant("v1", 1000, 2)}}
	d := NewDeriver(catalog, Rules{}, defaultPolicy, Options{})
	cart := &domain.Cart{Currency: "INR", Items: []domain.CartItem{{VariantID: "v1", Quantity: 5}}}

	s := d.Derive(context.Background(), cart, individual)
	it := s.Items[0]
	if !it.IsAvailable || it.StockAvailable {
		t.Fatalf("expected available with stock shortfall, got %+v", it)
	}
	if it.Quantity != 5 || it.BillableQuantity != 2 || it.AvailableQuantity != 2 {
		t.Fatalf("unexpected quantities %+v", it)
	}
	if s.SubtotalCents != 2000 || s.ItemCount != 2 {
		t.Fatalf("totals must use billable quantity, got %+v", s)
	}
}

func TestDerive_UnavailableReasons(t *testing.T) {
	discontinued := variant("v2", 1000, 5)
	discontinued.ProductStatus = domain.ProductDiscontinued
	inactive := variant("v3", 1000, 5)
	inactive.Active = false
	catalog := &stubCatalog{
		variants: map[string]domain.Variant{
			"v2": discontinued,
			"v3": inactive,
			"v4": variant("v4", 1000, 0),
			"v5": variant("v5", 1000, 5),
		},
		errs: map[string]error{"v6": domain.Transient(errors.New("dial tcp"), "catalog down")},
	}
	d := NewDeriver(catalog, Rules{}, defaultPolicy, Options{})
	cart := &domain.Cart{Currency: "INR", Items: []domain.CartItem{
		{VariantID: "v1", Quantity: 1},
		{VariantID: "v2", Quantity: 1},
		{VariantID: "v3", Quantity: 1},
		{VariantID: "v4", Quantity: 1},
		{VariantID: "v5", Quantity: 1},
		{VariantID: "v6", Quantity: 1},
	}}

	s := d.Derive(context.Background(), cart, individual)
	want := []domain.UnavailableReason{
		domain.ReasonDeleted,
		domain.ReasonDiscontinued,
		domain.ReasonTemporarilyUnavailable,
		domain.ReasonOutOfStock,
		"",
		domain.ReasonTemporarilyUnavailable,
	}
	for i, reason := range want {
		if s.Items[i].UnavailableReason != reason {
			t.Fatalf("item %d reason = %q, want %q", i, s.Items[i].UnavailableReason, reason)
		}
		if (reason == "") != s.Items[i].IsAvailable {
			t.Fatalf("item %d availability mismatch %+v", i, s.Items[i])
		}
	}
	if s.SubtotalCents != 1000 || len(s.Items) != 6 {
		t.Fatalf("only the available line counts: %+v", s)
	}
}

func TestDerive_RedactsForPriceBlindCallers(t *testing.T) {
	catalog := &stubCatalog{variants: map[string]domain.Variant{"v1": variant("v1", 1000, 1)}}
	d := NewDeriver(catalog, Rules{ShippingFlatCents: 500}, defaultPolicy, Options{})
	cart := &domain.Cart{Currency: "INR", Items: []domain.CartItem{{VariantID: "v1", Quantity: 3, PriceAtAddCents: 900}}}
	unverified := domain.UserContext{UserID: "u3", AccountType: domain.AccountBusiness, BusinessProfileID: "b3"}

	s := d.Derive(context.Background(), cart, unverified)
	if s.PricesVisible || s.TotalCents != 0 || s.SubtotalCents != 0 || s.ShippingCents != 0 {
		t.Fatalf("expected redacted totals, got %+v", s)
	}
	it := s.Items[0]
	if it.UnitPriceCents != 0 || it.PriceChange != nil || it.SubtotalCents != 0 {
		t.Fatalf("expected redacted item, got %+v", it)
	}
	if !it.IsAvailable || it.StockAvailable {
		t.Fatalf("availability must survive redaction: %+v", it)
	}

	internal := d.DeriveInternal(context.Background(), cart, unverified)
	if internal.TotalCents != 1500 || !internal.Balanced() {
		t.Fatalf("internal totals = %+v", internal)
	}
}

func TestPolicy_CanSeePrice(t *testing.T) {
	strict := Policy{HideForGuests: true, HideForUnverifiedBusiness: true}
	cases := []struct {
		name string
		user domain.UserContext
		want bool
	}{
		{"guest", domain.Guest(), false},
		{"individual", individual, true},
		{"verified business", verifiedB2B, true},
		{"unverified business", domain.UserContext{UserID: "u", AccountType: domain.AccountBusiness}, false},
		{"merchant", domain.UserContext{UserID: "m", Role: domain.RoleMerchant, AccountType: domain.AccountBusiness}, true},
	}
	for _, tc := range cases {
		if got := strict.CanSeePrice(tc.user); got != tc.want {
			t.Fatalf("%s: CanSeePrice = %v, want %v", tc.name, got, tc.want)
		}
	}
	if !(Policy{}).CanSeePrice(domain.Guest()) {
		t.Fatalf("relaxed policy must show guest prices")
	}
}

func TestQuoteTotals(t *testing.T) {
	ten := decimal.NewFromInt(10)
	items := []domain.QuoteItem{
		{VariantID: "v1", Quantity: 2, UnitPriceCents: 50000, DiscountPercent: &ten},
		{VariantID: "v2", Quantity: 1, UnitPriceCents: 12345},
	}
	for i := range items {
		items[i].LineTotalCents = items[i].ComputeLineTotal()
	}
	rules := Rules{TaxRate: decimal.RequireFromString("0.18"), ShippingFlatCents: 15000, FreeShippingThresholdCents: 100000}
	got := rules.QuoteTotals(items)
	if got.SubtotalCents != 112345 || got.DiscountCents != 10000 {
		t.Fatalf("unexpected totals %+v", got)
	}
	// taxable 102345 clears the threshold; 18% = 18422.1 -> 18422
	if got.ShippingCents != 0 || got.TaxCents != 18422 {
		t.Fatalf("unexpected tax/shipping %+v", got)
	}
	if got.TotalCents != got.SubtotalCents-got.DiscountCents+got.TaxCents+got.ShippingCents {
		t.Fatalf("totals do not balance %+v", got)
	}
}
