package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type QuoteStatus string

const (
	QuotePendingMerchant  QuoteStatus = "pending_merchant"
	QuotePendingCustomer  QuoteStatus = "pending_customer"
	QuoteAccepted         QuoteStatus = "accepted"
	QuoteMerchantRejected QuoteStatus = "merchant_rejected"
	QuoteCustomerRejected QuoteStatus = "customer_rejected"
	QuoteExpired          QuoteStatus = "expired"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuotePendingMerchant: {QuotePendingCustomer, QuoteAccepted, QuoteMerchantRejected, QuoteExpired},
	QuotePendingCustomer: {QuotePendingMerchant, QuoteAccepted, QuoteCustomerRejected, QuoteExpired},
}

// PendingQuoteStatuses lists the statuses the expiry sweep considers.
var PendingQuoteStatuses = []QuoteStatus{QuotePendingMerchant, QuotePendingCustomer}

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuotePendingMerchant, QuotePendingCustomer, QuoteAccepted, QuoteMerchantRejected, QuoteCustomerRejected, QuoteExpired:
		return true
	}
	return false
}

func (s QuoteStatus) Terminal() bool {
	_, ok := quoteTransitions[s]
	return s.Valid() && !ok
}

func (s QuoteStatus) CanTransition(to QuoteStatus) bool {
	for _, next := range quoteTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Turn reports which party is expected to act next. Terminal statuses have no turn.
func (s QuoteStatus) Turn() Party {
	switch s {
	case QuotePendingMerchant:
		return PartyMerchant
	case QuotePendingCustomer:
		return PartyCustomer
	}
	return ""
}

type Party string

const (
	PartyCustomer Party = "customer"
	PartyMerchant Party = "merchant"
	PartySystem   Party = "system"
)

func (p Party) other() Party {
	if p == PartyMerchant {
		return PartyCustomer
	}
	return PartyMerchant
}

func pendingFor(p Party) QuoteStatus {
	if p == PartyMerchant {
		return QuotePendingMerchant
	}
	return QuotePendingCustomer
}

// DisplayStatus is the storefront-facing label for a quote.
type DisplayStatus string

const (
	DisplayPending     DisplayStatus = "pending"
	DisplayNegotiation DisplayStatus = "negotiation"
	DisplayRevised     DisplayStatus = "revised"
	DisplayAccepted    DisplayStatus = "accepted"
	DisplayRejected    DisplayStatus = "rejected"
	DisplayExpired     DisplayStatus = "expired"
)

type QuoteItem struct {
	ID              string           `json:"id,omitempty"`
	QuoteID         string           `json:"quoteId,omitempty"`
	VariantID       string           `json:"variantId"`
	ProductID       string           `json:"productId,omitempty"`
	SKU             string           `json:"sku,omitempty"`
	Title           string           `json:"title,omitempty"`
	Quantity        int              `json:"quantity"`
	UnitPriceCents  int64            `json:"unitPriceCents"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
	LineTotalCents  int64            `json:"lineTotalCents"`
}

// GrossCents is unit price times quantity before the line discount.
func (i QuoteItem) GrossCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// ComputeLineTotal applies the optional discount percentage, rounding half-up to whole minor units.
func (i QuoteItem) ComputeLineTotal() int64 {
	gross := decimal.NewFromInt(i.GrossCents())
	if i.DiscountPercent == nil || i.DiscountPercent.IsZero() {
		return gross.IntPart()
	}
	keep := decimal.NewFromInt(100).Sub(*i.DiscountPercent).Div(decimal.NewFromInt(100))
	return gross.Mul(keep).Round(0).IntPart()
}

func (i QuoteItem) Validate() error {
	if strings.TrimSpace(i.VariantID) == "" {
		return Validation("variantId required")
	}
	if i.Quantity <= 0 {
		return Validation("quantity must be positive")
	}
	if i.UnitPriceCents < 0 {
		return Validation("unit price must not be negative")
	}
	if d := i.DiscountPercent; d != nil && (d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100))) {
		return Validation("discount must be between 0 and 100")
	}
	return nil
}

type QuoteMessage struct {
	ID        string    `json:"id,omitempty"`
	QuoteID   string    `json:"quoteId,omitempty"`
	Author    Party     `json:"author"`
	Body      string    `json:"body"`
	Internal  bool      `json:"internal"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuoteStatusEvent is one row of the append-only transition history. Events without an ID have
// not been persisted yet.
type QuoteStatusEvent struct {
	ID        string      `json:"id,omitempty"`
	QuoteID   string      `json:"quoteId,omitempty"`
	From      QuoteStatus `json:"from"`
	To        QuoteStatus `json:"to"`
	Actor     Party       `json:"actor"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

type QuoteTotals struct {
	SubtotalCents int64 `json:"subtotalCents"`
	DiscountCents int64 `json:"discountTotalCents"`
	TaxCents      int64 `json:"taxTotalCents"`
	ShippingCents int64 `json:"shippingTotalCents"`
	TotalCents    int64 `json:"totalCents"`
}

type Quote struct {
	ID           string      `json:"id"`
	Status       QuoteStatus `json:"status"`
	CustomerID   string      `json:"customerId"`
	Profile      ProfileRef  `json:"profile"`
	CartID       string      `json:"cartId"`
	DraftOrderID string      `json:"draftOrderId,omitempty"`
	OrderID      string      `json:"orderId,omitempty"`
	Currency     string      `json:"currency"`
	ValidUntil   time.Time   `json:"validUntil"`
	Revision     int         `json:"revision"`
	RejectedBy   Party       `json:"rejectedBy,omitempty"`
	RejectReason string      `json:"rejectReason,omitempty"`
	QuoteTotals
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Items     []QuoteItem        `json:"items"`
	Messages  []QuoteMessage     `json:"messages,omitempty"`
	Events    []QuoteStatusEvent `json:"events,omitempty"`
}

func (q *Quote) DisplayStatus() DisplayStatus {
	switch q.Status {
	case QuotePendingMerchant:
		if q.Revision > 0 {
			return DisplayNegotiation
		}
		return DisplayPending
	case QuotePendingCustomer:
		return DisplayRevised
	case QuoteAccepted:
		return DisplayAccepted
	case QuoteMerchantRejected, QuoteCustomerRejected:
		return DisplayRejected
	default:
		return DisplayExpired
	}
}

// Overdue reports whether the quote is still open past its validity deadline.
func (q *Quote) Overdue(now time.Time) bool {
	return !q.Status.Terminal() && q.ValidUntil.Before(now)
}

// checkOpen treats an overdue quote as expired even before the sweep has recorded it.
func (q *Quote) checkOpen(now time.Time) error {
	if q.Status.Terminal() {
		return InvalidState("quote %s is %s", q.ID, q.Status)
	}
	if q.Overdue(now) {
		return InvalidState("quote %s expired at %s", q.ID, q.ValidUntil.UTC().Format(time.RFC3339))
	}
	return nil
}

func (q *Quote) checkTurn(actor Party, action string, now time.Time) error {
	if err := q.checkOpen(now); err != nil {
		return err
	}
	if q.Status.Turn() != actor {
		return InvalidTransition("%s cannot %s a quote in %s", actor, action, q.Status)
	}
	return nil
}

func (q *Quote) transition(to QuoteStatus, actor Party, note string, now time.Time) error {
	if !q.Status.CanTransition(to) {
		return InvalidTransition("quote %s cannot move from %s to %s", q.ID, q.Status, to)
	}
	q.Events = append(q.Events, QuoteStatusEvent{
		QuoteID:   q.ID,
		From:      q.Status,
		To:        to,
		Actor:     actor,
		Note:      note,
		CreatedAt: now,
	})
	q.Status = to
	q.UpdatedAt = now
	return nil
}

// Accept closes the negotiation on the actor's turn. A customer may only accept a quote awaiting
// the customer.
func (q *Quote) Accept(actor Party, now time.Time) error {
	if err := q.checkTurn(actor, "accept", now); err != nil {
		return err
	}
	return q.transition(QuoteAccepted, actor, "", now)
}

func (q *Quote) Reject(actor Party, reason string, now time.Time) error {
	if err := q.checkTurn(actor, "reject", now); err != nil {
		return err
	}
	to := QuoteCustomerRejected
	if actor == PartyMerchant {
		to = QuoteMerchantRejected
	}
	if err := q.transition(to, actor, reason, now); err != nil {
		return err
	}
	q.RejectedBy = actor
	q.RejectReason = strings.TrimSpace(reason)
	return nil
}

// Revise replaces the item set and hands the quote to the other party. Only lines already on the
// quote may be changed or dropped. Customers counter on quantity and requested discount; unit
// prices stay as the merchant last set them.
func (q *Quote) Revise(actor Party, items []QuoteItem, now time.Time) error {
	if err := q.checkTurn(actor, "revise", now); err != nil {
		return err
	}
	if len(items) == 0 {
		return Validation("revision must keep at least one item")
	}
	current := make(map[string]QuoteItem, len(q.Items))
	for _, it := range q.Items {
		current[it.VariantID] = it
	}
	seen := make(map[string]struct{}, len(items))
	next := make([]QuoteItem, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		prev, ok := current[it.VariantID]
		if !ok {
			return Validation("variant %s is not on quote %s", it.VariantID, q.ID)
		}
		if _, dup := seen[it.VariantID]; dup {
			return Validation("variant %s listed twice", it.VariantID)
		}
		seen[it.VariantID] = struct{}{}
		line := prev
		line.ID = ""
		line.Quantity = it.Quantity
		line.DiscountPercent = it.DiscountPercent
		if actor == PartyMerchant {
			line.UnitPriceCents = it.UnitPriceCents
		}
		line.LineTotalCents = line.ComputeLineTotal()
		next = append(next, line)
	}
	if err := q.transition(pendingFor(actor.other()), actor, "revised", now); err != nil {
		return err
	}
	q.Items = next
	q.Revision++
	return nil
}

// AddMessage appends to the negotiation thread of an open quote. Internal notes are merchant-only.
func (q *Quote) AddMessage(actor Party, body string, internal bool, now time.Time) (*QuoteMessage, error) {
	if err := q.checkOpen(now); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, Validation("message body required")
	}
	if internal && actor != PartyMerchant {
		return nil, Validation("only merchants can post internal notes")
	}
	q.Messages = append(q.Messages, QuoteMessage{
		QuoteID:   q.ID,
		Author:    actor,
		Body:      body,
		Internal:  internal,
		CreatedAt: now,
	})
	q.UpdatedAt = now
	return &q.Messages[len(q.Messages)-1], nil
}

// Expire moves an overdue open quote to expired.
func (q *Quote) Expire(now time.Time) error {
	if q.Status.Terminal() {
		return InvalidState("quote %s is %s", q.ID, q.Status)
	}
	if !q.Overdue(now) {
		return InvalidState("quote %s is valid until %s", q.ID, q.ValidUntil.Format(time.RFC3339))
	}
	return q.transition(QuoteExpired, PartySystem, "validity elapsed", now)
}

// ForCustomer drops merchant-internal notes.
func (q Quote) ForCustomer() Quote {
	msgs := make([]QuoteMessage, 0, len(q.Messages))
	for _, m := range q.Messages {
		if !m.Internal {
			msgs = append(msgs, m)
		}
	}
	q.Messages = msgs
	return q
}
