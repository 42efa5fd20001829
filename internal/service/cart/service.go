package cart

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"cedar-commerce/internal/checkout"
	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
	"cedar-commerce/internal/events"
	"cedar-commerce/internal/pricing"
	cartrepo "cedar-commerce/internal/repository/cart"
	"github.com/shopspring/decimal"
)

type quoteCreator interface {
	CreateWith(ctx context.Context, tx db.Querier, q *domain.Quote) (*domain.Quote, error)
}

// Orders is the order backend seen by cart conversion.
type Orders interface {
	CreateOrder(ctx context.Context, s checkout.Snapshot) (string, error)
	CreateDraftOrder(ctx context.Context, s checkout.Snapshot) (string, error)
}

type publisher interface {
	CartConverted(ctx context.Context, ev events.CartConverted) error
}

type Options struct {
	Currency          string
	LockTTL           time.Duration
	QuoteValidity     time.Duration
	GuestCartMaxItems int
	Logger            *log.Logger
}

type Deps struct {
	Carts   cartrepo.Repository
	Quotes  quoteCreator
	Catalog pricing.Catalog
	Deriver *pricing.Deriver
	Orders  Orders
	Events  publisher
}

type Service struct {
	carts   cartrepo.Repository
	quotes  quoteCreator
	catalog pricing.Catalog
	deriver *pricing.Deriver
	orders  Orders
	events  publisher
	opts    Options
	logger  *log.Logger
	now     func() time.Time
}

func New(d Deps, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	if opts.QuoteValidity <= 0 {
		opts.QuoteValidity = 30 * 24 * time.Hour
	}
	if opts.GuestCartMaxItems <= 0 {
		opts.GuestCartMaxItems = domain.DefaultGuestCartMaxItems
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	return &Service{
		carts:   d.Carts,
		quotes:  d.Quotes,
		catalog: d.Catalog,
		deriver: d.Deriver,
		orders:  d.Orders,
		events:  d.Events,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// View is a cart as returned to its owner: persisted lines plus the freshly derived summary.
type View struct {
	Cart        *domain.Cart       `json:"cart"`
	Summary     domain.CartSummary `json:"summary"`
	LockWarning bool               `json:"lockWarning"`
}

// Conversion is the outcome of submitting a cart.
type Conversion struct {
	Cart    *domain.Cart            `json:"cart"`
	Target  domain.ConversionTarget `json:"target"`
	OrderID string                  `json:"orderId,omitempty"`
	Quote   *domain.Quote           `json:"quote,omitempty"`
	Summary domain.CartSummary      `json:"summary"`
}

// Current returns the caller's active cart for the profile, creating it on first use.
func (s *Service) Current(ctx context.Context, user domain.UserContext, kind domain.ProfileType) (*View, error) {
	cart, err := s.current(ctx, user, kind)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, user, cart), nil
}

func (s *Service) Get(ctx context.Context, user domain.UserContext, cartID string) (*View, error) {
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, user, cart), nil
}

// AddItem adds quantity of a variant. An empty cartID targets the caller's current cart.
func (s *Service) AddItem(ctx context.Context, user domain.UserContext, cartID, variantID string, qty int) (*View, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return nil, domain.Validation("variantId required")
	}
	if qty <= 0 {
		return nil, domain.Validation("quantity must be positive")
	}

	var (
		cart *domain.Cart
		err  error
	)
	if cartID == "" {
		cart, err = s.current(ctx, user, "")
	} else {
		cart, err = s.owned(ctx, user, cartID)
	}
	if err != nil {
		return nil, err
	}

	v, err := s.variant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	err = s.carts.AddItem(ctx, cart.ID, cartrepo.ItemInput{
		VariantID:       v.ID,
		ProductID:       v.ProductID,
		Quantity:        qty,
		PriceAtAddCents: v.PriceCents,
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

func (s *Service) UpdateQuantity(ctx context.Context, user domain.UserContext, cartID, variantID string, qty int) (*View, error) {
	if qty <= 0 {
		return nil, domain.Validation("quantity must be positive")
	}
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.SetQuantity(ctx, cart.ID, variantID, qty); err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

func (s *Service) RemoveItem(ctx context.Context, user domain.UserContext, cartID, variantID string) (*View, error) {
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.RemoveItem(ctx, cart.ID, variantID); err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

func (s *Service) Clear(ctx context.Context, user domain.UserContext, cartID string) (*View, error) {
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.Clear(ctx, cart.ID); err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

// LockForCheckout sets the advisory checkout lock. Mutations still succeed while it is live but
// views carry a lock warning.
func (s *Service) LockForCheckout(ctx context.Context, user domain.UserContext, cartID string) (*View, error) {
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	until := s.now().UTC().Add(s.opts.LockTTL)
	if err := s.carts.SetLock(ctx, cart.ID, &until); err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

func (s *Service) Unlock(ctx context.Context, user domain.UserContext, cartID string) (*View, error) {
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.SetLock(ctx, cart.ID, nil); err != nil {
		return nil, err
	}
	return s.reload(ctx, user, cart.ID)
}

func (s *Service) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	n, err := s.carts.ReleaseExpiredLocks(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("cart: released expired locks count=%d", n)
	}
	return n, nil
}

// Convert submits the cart as an order or a quote request. The cart is claimed, priced, handed to
// the order backend and stamped with the resulting reference in one transaction.
func (s *Service) Convert(ctx context.Context, user domain.UserContext, cartID string, target domain.ConversionTarget) (*Conversion, error) {
	state, err := target.State()
	if err != nil {
		return nil, err
	}
	cart, err := s.owned(ctx, user, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.IsActive() {
		return nil, domain.InvalidState("cart %s is %s", cart.ID, cart.ConversionState)
	}

	out := &Conversion{Target: target}
	converted, err := s.carts.Convert(ctx, cart.ID, state, func(ctx context.Context, tx db.Querier, claimed *domain.Cart) (string, error) {
		summary := s.deriver.DeriveInternal(ctx, claimed, user)
		if len(summary.BillableItems()) == 0 {
			return "", domain.InvalidState("cart %s has no available items", claimed.ID)
		}
		out.Summary = summary

		if target == domain.TargetOrder {
			orderID, err := s.orders.CreateOrder(ctx, checkout.FromCart(claimed, summary))
			if err != nil {
				return "", err
			}
			out.OrderID = orderID
			return orderID, nil
		}

		q := s.newQuote(claimed, user, summary)
		draftID, err := s.orders.CreateDraftOrder(ctx, checkout.FromQuote(q))
		if err != nil {
			return "", err
		}
		q.DraftOrderID = draftID
		created, err := s.quotes.CreateWith(ctx, tx, q)
		if err != nil {
			return "", err
		}
		out.Quote = created
		return created.ID, nil
	})
	if err != nil {
		s.logger.Printf("cart: convert id=%s target=%s error=%v", cart.ID, target, err)
		return nil, err
	}
	out.Cart = converted
	s.logger.Printf("cart: converted id=%s target=%s ref=%s", converted.ID, target, *converted.ConversionRef)

	total := out.Summary.TotalCents
	if out.Quote != nil {
		total = out.Quote.TotalCents
	}
	ev := events.CartConverted{
		CartID:     converted.ID,
		CustomerID: converted.CustomerID,
		Target:     target,
		Reference:  *converted.ConversionRef,
		Currency:   converted.Currency,
		TotalCents: total,
	}
	if err := s.events.CartConverted(ctx, ev); err != nil {
		s.logger.Printf("cart: publish converted id=%s error=%v", converted.ID, err)
	}

	// The snapshot was priced internally; the caller only gets what the visibility policy allows.
	if !s.deriver.Policy().CanSeePrice(user) {
		out.Summary = pricing.Redact(out.Summary)
		if out.Quote != nil {
			redacted := pricing.RedactQuote(*out.Quote)
			out.Quote = &redacted
		}
	}
	return out, nil
}

// newQuote freezes the billable lines at their derived prices. Verified businesses carry their
// account discount onto each line.
func (s *Service) newQuote(cart *domain.Cart, user domain.UserContext, summary domain.CartSummary) *domain.Quote {
	rules := s.deriver.Rules()
	var discount *decimal.Decimal
	if user.IsVerifiedBusiness() && rules.BusinessDiscountRate.IsPositive() {
		d := rules.BusinessDiscountRate.Mul(decimal.NewFromInt(100)).Round(2)
		discount = &d
	}

	billable := summary.BillableItems()
	items := make([]domain.QuoteItem, 0, len(billable))
	for _, it := range billable {
		line := domain.QuoteItem{
			VariantID:       it.VariantID,
			ProductID:       it.ProductID,
			SKU:             it.SKU,
			Title:           it.Title,
			Quantity:        it.BillableQuantity,
			UnitPriceCents:  it.UnitPriceCents,
			DiscountPercent: discount,
		}
		line.LineTotalCents = line.ComputeLineTotal()
		items = append(items, line)
	}

	now := s.now().UTC()
	return &domain.Quote{
		Status:      domain.QuotePendingMerchant,
		CustomerID:  cart.CustomerID,
		Profile:     cart.Profile,
		CartID:      cart.ID,
		Currency:    cart.Currency,
		ValidUntil:  now.Add(s.opts.QuoteValidity),
		QuoteTotals: rules.QuoteTotals(items),
		Items:       items,
		Events: []domain.QuoteStatusEvent{{
			To:        domain.QuotePendingMerchant,
			Actor:     domain.PartyCustomer,
			Note:      "requested",
			CreatedAt: now,
		}},
	}
}

func (s *Service) current(ctx context.Context, user domain.UserContext, kind domain.ProfileType) (*domain.Cart, error) {
	profile, err := user.Profile(kind)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.GetOrCreateActive(ctx, cartrepo.CreateCartInput{
		CustomerID: user.UserID,
		Profile:    profile,
		Currency:   s.opts.Currency,
	})
	if err != nil {
		return nil, err
	}
	if !cart.OwnedBy(user) {
		return nil, domain.NotFound("no active cart for profile %s/%s", profile.Type, profile.ID)
	}
	return cart, nil
}

// owned loads a cart and hides carts belonging to someone else.
func (s *Service) owned(ctx context.Context, user domain.UserContext, cartID string) (*domain.Cart, error) {
	if strings.TrimSpace(cartID) == "" {
		return nil, domain.Validation("cart id required")
	}
	if user.IsGuest() {
		return nil, domain.NotFound("cart %s not found", cartID)
	}
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.OwnedBy(user) {
		return nil, domain.NotFound("cart %s not found", cartID)
	}
	return cart, nil
}

func (s *Service) variant(ctx context.Context, id string) (*domain.Variant, error) {
	v, err := s.catalog.GetVariant(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("variant %s not found", id)
	}
	return v, err
}

func (s *Service) reload(ctx context.Context, user domain.UserContext, cartID string) (*View, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, user, cart), nil
}

func (s *Service) view(ctx context.Context, user domain.UserContext, cart *domain.Cart) *View {
	return &View{
		Cart:        cart,
		Summary:     s.deriver.Derive(ctx, cart, user),
		LockWarning: cart.LockActive(s.now()),
	}
}
