package quote

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"cedar-commerce/internal/checkout"
	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
	"cedar-commerce/internal/events"
	"cedar-commerce/internal/pricing"
	quoterepo "cedar-commerce/internal/repository/quote"
)

// Confirmer turns an accepted quote's draft order into a real order.
type Confirmer interface {
	ConfirmDraftOrder(ctx context.Context, draftOrderID string, s checkout.Snapshot) (string, error)
}

type publisher interface {
	QuoteStatusChanged(ctx context.Context, ev events.QuoteStatusChanged) error
}

type Service struct {
	repo      quoterepo.Repository
	rules     pricing.Rules
	policy    pricing.Policy
	confirmer Confirmer
	events    publisher
	logger    *log.Logger
	now       func() time.Time
}

func New(repo quoterepo.Repository, rules pricing.Rules, policy pricing.Policy, confirmer Confirmer, pub publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, rules: rules, policy: policy, confirmer: confirmer, events: pub, logger: logger, now: time.Now}
}

// Actor is who is acting on a quote: the owning customer, or a merchant.
type Actor struct {
	Party domain.Party
	User  domain.UserContext
}

func Customer(u domain.UserContext) Actor { return Actor{Party: domain.PartyCustomer, User: u} }

func Merchant(u domain.UserContext) Actor { return Actor{Party: domain.PartyMerchant, User: u} }

// Get returns a quote as the actor may see it. Customers only see their own quotes and never
// internal notes.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*domain.Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, q); err != nil {
		return nil, err
	}
	return s.present(actor, q), nil
}

func (s *Service) ListForCustomer(ctx context.Context, user domain.UserContext) ([]domain.Quote, error) {
	if user.IsGuest() {
		return nil, domain.Validation("sign in required")
	}
	quotes, err := s.repo.ListByCustomer(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i] = s.customerView(user, quotes[i])
	}
	return quotes, nil
}

// ListByStatus lists quotes for the back office. An empty status lists all.
func (s *Service) ListByStatus(ctx context.Context, status domain.QuoteStatus) ([]domain.Quote, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validation("unknown status %q", status)
	}
	return s.repo.ListByStatus(ctx, status)
}

// Accept closes the quote on the actor's turn and confirms the draft order inside the same
// transaction, so a failed confirmation leaves the quote open.
func (s *Service) Accept(ctx context.Context, actor Actor, id string) (*domain.Quote, error) {
	return s.update(ctx, actor, id, func(ctx context.Context, _ db.Querier, q *domain.Quote) error {
		if err := q.Accept(actor.Party, s.now().UTC()); err != nil {
			return err
		}
		orderID, err := s.confirmer.ConfirmDraftOrder(ctx, q.DraftOrderID, checkout.FromQuote(q))
		if err != nil {
			return err
		}
		q.OrderID = orderID
		return nil
	})
}

func (s *Service) Reject(ctx context.Context, actor Actor, id, reason string) (*domain.Quote, error) {
	return s.update(ctx, actor, id, func(_ context.Context, _ db.Querier, q *domain.Quote) error {
		return q.Reject(actor.Party, reason, s.now().UTC())
	})
}

// Revise replaces the item set and hands the quote to the other party. A merchant revision and a
// customer counter-offer share this path.
func (s *Service) Revise(ctx context.Context, actor Actor, id string, items []domain.QuoteItem, note string) (*domain.Quote, error) {
	return s.update(ctx, actor, id, func(_ context.Context, _ db.Querier, q *domain.Quote) error {
		now := s.now().UTC()
		if err := q.Revise(actor.Party, items, now); err != nil {
			return err
		}
		q.QuoteTotals = s.rules.QuoteTotals(q.Items)
		if note = strings.TrimSpace(note); note != "" {
			if _, err := q.AddMessage(actor.Party, note, false, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) AddMessage(ctx context.Context, actor Actor, id, body string, internal bool) (*domain.Quote, error) {
	return s.update(ctx, actor, id, func(_ context.Context, _ db.Querier, q *domain.Quote) error {
		_, err := q.AddMessage(actor.Party, body, internal, s.now().UTC())
		return err
	})
}

func (s *Service) update(ctx context.Context, actor Actor, id string, fn quoterepo.UpdateFunc) (*domain.Quote, error) {
	var from domain.QuoteStatus
	q, err := s.repo.Update(ctx, id, func(ctx context.Context, tx db.Querier, q *domain.Quote) error {
		if err := s.authorize(actor, q); err != nil {
			return err
		}
		from = q.Status
		return fn(ctx, tx, q)
	})
	if err != nil {
		s.logger.Printf("quote: update id=%s actor=%s error=%v", id, actor.Party, err)
		return nil, err
	}
	if q.Status != from {
		s.logger.Printf("quote: transition id=%s from=%s to=%s actor=%s", q.ID, from, q.Status, actor.Party)
		s.publish(ctx, events.QuoteStatusChanged{
			QuoteID:    q.ID,
			CustomerID: q.CustomerID,
			From:       from,
			To:         q.Status,
			Actor:      actor.Party,
			OrderID:    q.OrderID,
		})
	}
	return s.present(actor, q), nil
}

func (s *Service) publish(ctx context.Context, ev events.QuoteStatusChanged) {
	if err := s.events.QuoteStatusChanged(ctx, ev); err != nil {
		s.logger.Printf("quote: publish status id=%s error=%v", ev.QuoteID, err)
	}
}

func (s *Service) authorize(actor Actor, q *domain.Quote) error {
	switch actor.Party {
	case domain.PartyMerchant:
		if !actor.User.IsMerchant() {
			return domain.NotFound("quote %s not found", q.ID)
		}
		return nil
	case domain.PartyCustomer:
		if actor.User.IsGuest() || q.CustomerID != actor.User.UserID {
			return domain.NotFound("quote %s not found", q.ID)
		}
		return nil
	}
	return domain.Validation("unknown actor %q", actor.Party)
}

func (s *Service) present(actor Actor, q *domain.Quote) *domain.Quote {
	if actor.Party == domain.PartyMerchant {
		return q
	}
	out := s.customerView(actor.User, *q)
	return &out
}

// customerView hides internal notes. Until a merchant has priced the quote its figures are
// catalog prices, so they follow the caller's price visibility.
func (s *Service) customerView(user domain.UserContext, q domain.Quote) domain.Quote {
	out := q.ForCustomer()
	if out.Revision == 0 && !s.policy.CanSeePrice(user) {
		out = pricing.RedactQuote(out)
	}
	return out
}
