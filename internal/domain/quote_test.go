package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func pendingQuote(status QuoteStatus) *Quote {
	return &Quote{
		ID:         "q-1",
		Status:     status,
		ValidUntil: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Items: []QuoteItem{
			{VariantID: "v1", Quantity: 2, UnitPriceCents: 50000, LineTotalCents: 100000},
			{VariantID: "v2", Quantity: 1, UnitPriceCents: 12000, LineTotalCents: 12000},
		},
	}
}

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func TestAccept_FromPendingCustomerThenAgain(t *testing.T) {
	q := pendingQuote(QuotePendingCustomer)
	if err := q.Accept(PartyCustomer, now); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if q.Status != QuoteAccepted {
		t.Fatalf("expected accepted, got %s", q.Status)
	}
	if len(q.Events) != 1 || q.Events[0].From != QuotePendingCustomer || q.Events[0].To != QuoteAccepted {
		t.Fatalf("unexpected events %+v", q.Events)
	}

	err := q.Accept(PartyCustomer, now)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second accept, got %v", err)
	}
	if len(q.Events) != 1 {
		t.Fatalf("second accept must not record an event")
	}
}

func TestAccept_CustomerWhileMerchantPending(t *testing.T) {
	q := pendingQuote(QuotePendingMerchant)
	err := q.Accept(PartyCustomer, now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if q.Status != QuotePendingMerchant {
		t.Fatalf("status changed to %s", q.Status)
	}
}

func TestReject_CustomerWhileMerchantPending(t *testing.T) {
	q := pendingQuote(QuotePendingMerchant)
	err := q.Reject(PartyCustomer, "too expensive", now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if q.RejectedBy != "" || len(q.Events) != 0 {
		t.Fatalf("quote mutated: %+v", q)
	}
}

func TestReject_RecordsParty(t *testing.T) {
	q := pendingQuote(QuotePendingMerchant)
	if err := q.Reject(PartyMerchant, " discontinued line ", now); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if q.Status != QuoteMerchantRejected || q.RejectedBy != PartyMerchant || q.RejectReason != "discontinued line" {
		t.Fatalf("unexpected quote %+v", q)
	}

	c := pendingQuote(QuotePendingCustomer)
	if err := c.Reject(PartyCustomer, "", now); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if c.Status != QuoteCustomerRejected || c.RejectedBy != PartyCustomer {
		t.Fatalf("unexpected quote %+v", c)
	}
}

func TestRevise_MerchantFlipsToCustomer(t *testing.T) {
	q := pendingQuote(QuotePendingMerchant)
	disc := decimal.NewFromInt(10)
	err := q.Revise(PartyMerchant, []QuoteItem{
		{VariantID: "v1", Quantity: 3, UnitPriceCents: 45000, DiscountPercent: &disc},
	}, now)
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if q.Status != QuotePendingCustomer || q.Revision != 1 {
		t.Fatalf("unexpected status %s revision %d", q.Status, q.Revision)
	}
	if len(q.Items) != 1 {
		t.Fatalf("expected v2 to be dropped, got %+v", q.Items)
	}
	// 3 * 450.00 = 1350.00, less 10% = 1215.00
	if q.Items[0].LineTotalCents != 121500 {
		t.Fatalf("line total = %d", q.Items[0].LineTotalCents)
	}
	if q.DisplayStatus() != DisplayRevised {
		t.Fatalf("display status = %s", q.DisplayStatus())
	}
}

func TestRevise_CustomerCounterKeepsPrices(t *testing.T) {
	q := pendingQuote(QuotePendingCustomer)
	err := q.Revise(PartyCustomer, []QuoteItem{
		{VariantID: "v1", Quantity: 5, UnitPriceCents: 1},
		{VariantID: "v2", Quantity: 1},
	}, now)
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if q.Status != QuotePendingMerchant {
		t.Fatalf("expected pending_merchant, got %s", q.Status)
	}
	if q.Items[0].UnitPriceCents != 50000 || q.Items[0].LineTotalCents != 250000 {
		t.Fatalf("customer changed price: %+v", q.Items[0])
	}
	if q.DisplayStatus() != DisplayNegotiation {
		t.Fatalf("display status = %s", q.DisplayStatus())
	}
}

func TestRevise_RejectsUnknownAndInvalidLines(t *testing.T) {
	cases := map[string][]QuoteItem{
		"empty":     nil,
		"unknown":   {{VariantID: "v9", Quantity: 1}},
		"zero qty":  {{VariantID: "v1", Quantity: 0}},
		"duplicate": {{VariantID: "v1", Quantity: 1}, {VariantID: "v1", Quantity: 2}},
	}
	for name, items := range cases {
		q := pendingQuote(QuotePendingMerchant)
		err := q.Revise(PartyMerchant, items, now)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
		if q.Status != QuotePendingMerchant || len(q.Items) != 2 {
			t.Fatalf("%s: quote mutated", name)
		}
	}

	over := decimal.NewFromInt(101)
	q := pendingQuote(QuotePendingMerchant)
	if err := q.Revise(PartyMerchant, []QuoteItem{{VariantID: "v1", Quantity: 1, DiscountPercent: &over}}, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for discount, got %v", err)
	}
}

func TestTerminalQuoteRejectsAllMutations(t *testing.T) {
	for _, status := range []QuoteStatus{QuoteAccepted, QuoteMerchantRejected, QuoteCustomerRejected, QuoteExpired} {
		q := pendingQuote(status)
		if err := q.Accept(PartyMerchant, now); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s accept: %v", status, err)
		}
		if err := q.Reject(PartyCustomer, "", now); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s reject: %v", status, err)
		}
		if err := q.Revise(PartyMerchant, []QuoteItem{{VariantID: "v1", Quantity: 1}}, now); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s revise: %v", status, err)
		}
		if _, err := q.AddMessage(PartyCustomer, "hello", false, now); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s message: %v", status, err)
		}
		if err := q.Expire(now.AddDate(1, 0, 0)); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s expire: %v", status, err)
		}
		if q.Status != status || len(q.Events) != 0 || len(q.Items) != 2 {
			t.Fatalf("%s: quote mutated %+v", status, q)
		}
	}
}

func TestExpire(t *testing.T) {
	q := pendingQuote(QuotePendingCustomer)
	if err := q.Expire(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected not-yet-due error, got %v", err)
	}
	later := q.ValidUntil.Add(time.Second)
	if err := q.Expire(later); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if q.Status != QuoteExpired || q.Events[0].Actor != PartySystem {
		t.Fatalf("unexpected quote %+v", q)
	}
	if err := q.Expire(later); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second expire: %v", err)
	}
}

func TestAddMessage(t *testing.T) {
	q := pendingQuote(QuotePendingMerchant)
	if _, err := q.AddMessage(PartyCustomer, "note", true, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("customer internal note: %v", err)
	}
	if _, err := q.AddMessage(PartyCustomer, "   ", false, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank body: %v", err)
	}
	if _, err := q.AddMessage(PartyMerchant, "margin is thin", true, now); err != nil {
		t.Fatalf("internal note: %v", err)
	}
	if _, err := q.AddMessage(PartyCustomer, "can you ship by friday?", false, now); err != nil {
		t.Fatalf("customer message: %v", err)
	}
	visible := q.ForCustomer()
	if len(visible.Messages) != 1 || visible.Messages[0].Author != PartyCustomer {
		t.Fatalf("internal note leaked: %+v", visible.Messages)
	}
	if len(q.Messages) != 2 {
		t.Fatalf("ForCustomer mutated the original")
	}
}

func TestStatusTable(t *testing.T) {
	if !QuotePendingMerchant.CanTransition(QuotePendingCustomer) || !QuotePendingCustomer.CanTransition(QuotePendingMerchant) {
		t.Fatalf("counter-offer loop must be allowed")
	}
	if QuotePendingMerchant.CanTransition(QuoteCustomerRejected) {
		t.Fatalf("customer rejection from pending_merchant must not be allowed")
	}
	for _, s := range []QuoteStatus{QuoteAccepted, QuoteMerchantRejected, QuoteCustomerRejected, QuoteExpired} {
		if !s.Terminal() || s.CanTransition(QuotePendingMerchant) {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestOverdueQuoteRejectsMutationsBeforeSweep(t *testing.T) {
	late := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	q := pendingQuote(QuotePendingCustomer)
	if err := q.Accept(PartyCustomer, late); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("accept overdue: %v", err)
	}
	if err := q.Reject(PartyCustomer, "", late); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("reject overdue: %v", err)
	}
	if err := q.Revise(PartyCustomer, []QuoteItem{{VariantID: "v1", Quantity: 1}}, late); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("revise overdue: %v", err)
	}
	if _, err := q.AddMessage(PartyCustomer, "still there?", false, late); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("message overdue: %v", err)
	}
	if q.Status != QuotePendingCustomer || len(q.Events) != 0 || len(q.Messages) != 0 {
		t.Fatalf("overdue quote mutated %+v", q)
	}
	if err := q.Expire(late); err != nil {
		t.Fatalf("sweep should still expire it: %v", err)
	}
}
