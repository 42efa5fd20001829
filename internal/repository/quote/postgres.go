package quote

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type postgresRepo struct {
	db     db.TxBeginner
	logger *log.Logger
}

func NewPostgres(pool db.TxBeginner, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{db: pool, logger: logger}
}

const quoteColumns = `id::text, status, customer_id, individual_profile_id, business_profile_id, cart_id::text, draft_order_id, order_id, currency, valid_until, revision, rejected_by, reject_reason, subtotal_cents, discount_cents, tax_cents, shipping_cents, total_cents, version, created_at, updated_at`

// CreateWith inserts a new quote with its items, messages and status history using tx, so the
// insert commits together with the cart conversion that produced it.
func (r *postgresRepo) CreateWith(ctx context.Context, tx db.Querier, q *domain.Quote) (*domain.Quote, error) {
	const insert = `
INSERT INTO quotes (status, customer_id, individual_profile_id, business_profile_id, cart_id, draft_order_id, currency, valid_until,
                    subtotal_cents, discount_cents, tax_cents, shipping_cents, total_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id::text, version, created_at, updated_at
`
	individual, business := profileColumns(q.Profile)
	res := *q
	err := tx.QueryRow(ctx, insert,
		string(q.Status),
		q.CustomerID,
		individual,
		business,
		q.CartID,
		q.DraftOrderID,
		q.Currency,
		q.ValidUntil,
		q.SubtotalCents,
		q.DiscountCents,
		q.TaxCents,
		q.ShippingCents,
		q.TotalCents,
	).Scan(&res.ID, &res.Version, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		r.logger.Printf("quote repo: create cart_id=%s error=%v", q.CartID, err)
		return nil, db.Classify(err)
	}
	if err := insertItems(ctx, tx, &res); err != nil {
		return nil, err
	}
	if err := insertPending(ctx, tx, &res); err != nil {
		return nil, err
	}
	r.logger.Printf("quote repo: created id=%s cart_id=%s items=%d", res.ID, res.CartID, len(res.Items))
	return &res, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Quote, error) {
	return loadQuote(ctx, r.db, id, false)
}

func (r *postgresRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Quote, error) {
	return r.list(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
}

func (r *postgresRepo) ListByStatus(ctx context.Context, status domain.QuoteStatus) ([]domain.Quote, error) {
	return r.list(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
}

func (r *postgresRepo) list(ctx context.Context, q string, arg string) ([]domain.Quote, error) {
	rows, err := r.db.Query(ctx, q, arg)
	if err != nil {
		r.logger.Printf("quote repo: list arg=%s error=%v", arg, err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := []domain.Quote{}
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *quote)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

// Update locks the quote row, applies fn, and persists whatever fn changed. The write is
// conditioned on the status fn saw, so a concurrent sweep or transition cannot be overwritten.
func (r *postgresRepo) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Quote, error) {
	var out *domain.Quote
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		q, err := loadQuote(ctx, tx, id, true)
		if err != nil {
			return err
		}
		prevStatus, prevRevision := q.Status, q.Revision

		if err := fn(ctx, tx, q); err != nil {
			return err
		}

		const update = `
UPDATE quotes
SET status = $3, revision = $4, rejected_by = $5, reject_reason = $6, order_id = $7,
    subtotal_cents = $8, discount_cents = $9, tax_cents = $10, shipping_cents = $11, total_cents = $12,
    version = version + 1, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING version, updated_at
`
		err = tx.QueryRow(ctx, update,
			id,
			string(prevStatus),
			string(q.Status),
			q.Revision,
			string(q.RejectedBy),
			q.RejectReason,
			q.OrderID,
			q.SubtotalCents,
			q.DiscountCents,
			q.TaxCents,
			q.ShippingCents,
			q.TotalCents,
		).Scan(&q.Version, &q.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.InvalidState("quote %s changed concurrently", id)
			}
			return db.Classify(err)
		}

		if q.Revision != prevRevision {
			if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, id); err != nil {
				return db.Classify(err)
			}
			if err := insertItems(ctx, tx, q); err != nil {
				return err
			}
		}
		if err := insertPending(ctx, tx, q); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		r.logger.Printf("quote repo: update id=%s error=%v", id, err)
		return nil, err
	}
	r.logger.Printf("quote repo: updated id=%s status=%s revision=%d", id, out.Status, out.Revision)
	return out, nil
}

// ExpireOverdue expires open quotes past valid_until in one statement. Rows locked by an in-flight
// transition are skipped and picked up by the next run; each expired quote gets exactly one
// status event.
func (r *postgresRepo) ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]Expired, error) {
	const q = `
WITH candidates AS (
    SELECT id, status
    FROM quotes
    WHERE valid_until < $1 AND status IN ('pending_merchant', 'pending_customer')
    ORDER BY valid_until ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
), expired AS (
    UPDATE quotes q
    SET status = 'expired', version = q.version + 1, updated_at = $1
    FROM candidates c
    WHERE q.id = c.id AND q.status IN ('pending_merchant', 'pending_customer')
    RETURNING q.id, q.customer_id, c.status AS from_status
), events AS (
    INSERT INTO quote_status_events (quote_id, from_status, to_status, actor, note, created_at)
    SELECT id, from_status, 'expired', 'system', 'validity elapsed', $1
    FROM expired
)
SELECT id::text, customer_id, from_status FROM expired
`
	rows, err := r.db.Query(ctx, q, now, limit)
	if err != nil {
		r.logger.Printf("quote repo: expire overdue error=%v", err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []Expired
	for rows.Next() {
		var e Expired
		var from string
		if err := rows.Scan(&e.ID, &e.CustomerID, &from); err != nil {
			return nil, err
		}
		e.From = domain.QuoteStatus(from)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func loadQuote(ctx context.Context, q db.Querier, id string, forUpdate bool) (*domain.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	quote, err := scanQuote(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("quote %s not found", id)
		}
		return nil, err
	}
	if quote.Items, err = loadItems(ctx, q, quote.ID); err != nil {
		return nil, err
	}
	if quote.Messages, err = loadMessages(ctx, q, quote.ID); err != nil {
		return nil, err
	}
	if quote.Events, err = loadEvents(ctx, q, quote.ID); err != nil {
		return nil, err
	}
	return quote, nil
}

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var (
		q                    domain.Quote
		status, rejectedBy   string
		individual, business *string
	)
	err := row.Scan(
		&q.ID,
		&status,
		&q.CustomerID,
		&individual,
		&business,
		&q.CartID,
		&q.DraftOrderID,
		&q.OrderID,
		&q.Currency,
		&q.ValidUntil,
		&q.Revision,
		&rejectedBy,
		&q.RejectReason,
		&q.SubtotalCents,
		&q.DiscountCents,
		&q.TaxCents,
		&q.ShippingCents,
		&q.TotalCents,
		&q.Version,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err)
	}
	q.Status = domain.QuoteStatus(status)
	q.RejectedBy = domain.Party(rejectedBy)
	switch {
	case business != nil:
		q.Profile = domain.ProfileRef{Type: domain.ProfileBusiness, ID: *business}
	case individual != nil:
		q.Profile = domain.ProfileRef{Type: domain.ProfileIndividual, ID: *individual}
	}
	return &q, nil
}

func loadItems(ctx context.Context, q db.Querier, quoteID string) ([]domain.QuoteItem, error) {
	rows, err := q.Query(ctx, `
SELECT id::text, quote_id::text, variant_id::text, product_id::text, sku, title, quantity, unit_price_cents, discount_percent::text, line_total_cents
FROM quote_items
WHERE quote_id = $1
ORDER BY position ASC
`, quoteID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	items := []domain.QuoteItem{}
	for rows.Next() {
		var it domain.QuoteItem
		var discount *string
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.VariantID, &it.ProductID, &it.SKU, &it.Title, &it.Quantity, &it.UnitPriceCents, &discount, &it.LineTotalCents); err != nil {
			return nil, err
		}
		if discount != nil {
			d, err := decimal.NewFromString(*discount)
			if err != nil {
				return nil, err
			}
			it.DiscountPercent = &d
		}
		items = append(items, it)
	}
	return items, db.Classify(rows.Err())
}

func loadMessages(ctx context.Context, q db.Querier, quoteID string) ([]domain.QuoteMessage, error) {
	rows, err := q.Query(ctx, `
SELECT id::text, quote_id::text, author, body, internal, created_at
FROM quote_messages
WHERE quote_id = $1
ORDER BY created_at ASC, id ASC
`, quoteID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	msgs := []domain.QuoteMessage{}
	for rows.Next() {
		var m domain.QuoteMessage
		var author string
		if err := rows.Scan(&m.ID, &m.QuoteID, &author, &m.Body, &m.Internal, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Author = domain.Party(author)
		msgs = append(msgs, m)
	}
	return msgs, db.Classify(rows.Err())
}

func loadEvents(ctx context.Context, q db.Querier, quoteID string) ([]domain.QuoteStatusEvent, error) {
	rows, err := q.Query(ctx, `
SELECT id::text, quote_id::text, from_status, to_status, actor, note, created_at
FROM quote_status_events
WHERE quote_id = $1
ORDER BY created_at ASC, id ASC
`, quoteID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	events := []domain.QuoteStatusEvent{}
	for rows.Next() {
		var e domain.QuoteStatusEvent
		var from, to, actor string
		if err := rows.Scan(&e.ID, &e.QuoteID, &from, &to, &actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.From, e.To, e.Actor = domain.QuoteStatus(from), domain.QuoteStatus(to), domain.Party(actor)
		events = append(events, e)
	}
	return events, db.Classify(rows.Err())
}

func insertItems(ctx context.Context, q db.Querier, quote *domain.Quote) error {
	const insert = `
INSERT INTO quote_items (quote_id, position, variant_id, product_id, sku, title, quantity, unit_price_cents, discount_percent, line_total_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
RETURNING id::text
`
	for i := range quote.Items {
		it := &quote.Items[i]
		var discount *string
		if it.DiscountPercent != nil {
			s := it.DiscountPercent.String()
			discount = &s
		}
		if err := q.QueryRow(ctx, insert,
			quote.ID,
			i,
			it.VariantID,
			it.ProductID,
			it.SKU,
			it.Title,
			it.Quantity,
			it.UnitPriceCents,
			discount,
			it.LineTotalCents,
		).Scan(&it.ID); err != nil {
			return db.Classify(err)
		}
		it.QuoteID = quote.ID
	}
	return nil
}

// insertPending writes messages and status events that have no ID yet.
func insertPending(ctx context.Context, q db.Querier, quote *domain.Quote) error {
	for i := range quote.Messages {
		m := &quote.Messages[i]
		if m.ID != "" {
			continue
		}
		if err := q.QueryRow(ctx, `
INSERT INTO quote_messages (quote_id, author, body, internal, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text
`, quote.ID, string(m.Author), m.Body, m.Internal, m.CreatedAt).Scan(&m.ID); err != nil {
			return db.Classify(err)
		}
		m.QuoteID = quote.ID
	}
	for i := range quote.Events {
		e := &quote.Events[i]
		if e.ID != "" {
			continue
		}
		if err := q.QueryRow(ctx, `
INSERT INTO quote_status_events (quote_id, from_status, to_status, actor, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id::text
`, quote.ID, string(e.From), string(e.To), string(e.Actor), e.Note, e.CreatedAt).Scan(&e.ID); err != nil {
			return db.Classify(err)
		}
		e.QuoteID = quote.ID
	}
	return nil
}

func profileColumns(p domain.ProfileRef) (individual, business *string) {
	id := p.ID
	if p.Type == domain.ProfileBusiness {
		return nil, &id
	}
	return &id, nil
}
