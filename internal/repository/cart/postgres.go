package cart

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
	"github.com/jackc/pgx/v5"
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

const cartColumns = `id::text, customer_id, individual_profile_id, business_profile_id, currency, locked_until, conversion_state, conversion_ref, version, created_at, updated_at`

func (r *postgresRepo) GetOrCreateActive(ctx context.Context, in CreateCartInput) (*domain.Cart, error) {
	const q = `
INSERT INTO carts (customer_id, individual_profile_id, business_profile_id, currency)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
RETURNING id::text
`
	individual, business := profileColumns(in.Profile)
	var id string
	err := r.db.QueryRow(ctx, q, in.CustomerID, individual, business, in.Currency).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// An active cart already exists for this customer and profile.
		return r.GetActive(ctx, in.CustomerID, in.Profile)
	}
	if err != nil {
		r.logger.Printf("cart repo: create customer_id=%s profile=%s/%s error=%v", in.CustomerID, in.Profile.Type, in.Profile.ID, err)
		return nil, db.Classify(err)
	}
	r.logger.Printf("cart repo: created id=%s profile=%s/%s", id, in.Profile.Type, in.Profile.ID)
	return r.GetByID(ctx, id)
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	return fetchCart(ctx, r.db, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
}

func (r *postgresRepo) GetActive(ctx context.Context, customerID string, profile domain.ProfileRef) (*domain.Cart, error) {
	column := "individual_profile_id"
	if profile.Type == domain.ProfileBusiness {
		column = "business_profile_id"
	}
	return fetchCart(ctx, r.db, `SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND `+column+` = $2 AND conversion_state = 'active'`, customerID, profile.ID)
}

func (r *postgresRepo) AddItem(ctx context.Context, cartID string, in ItemInput) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		return upsertItem(ctx, tx, cartID, in)
	})
}

func (r *postgresRepo) SetQuantity(ctx context.Context, cartID, variantID string, quantity int) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE cart_items
SET quantity = $3, updated_at = now()
WHERE cart_id = $1 AND variant_id = $2
`, cartID, variantID, quantity)
		if err != nil {
			return db.Classify(err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound("variant %s is not in cart", variantID)
		}
		return nil
	})
}

func (r *postgresRepo) RemoveItem(ctx context.Context, cartID, variantID string) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2`, cartID, variantID)
		if err != nil {
			return db.Classify(err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound("variant %s is not in cart", variantID)
		}
		return nil
	})
}

func (r *postgresRepo) Clear(ctx context.Context, cartID string) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
		return db.Classify(err)
	})
}

// SetLock sets or clears the advisory checkout lock. Converted carts cannot be locked.
func (r *postgresRepo) SetLock(ctx context.Context, cartID string, until *time.Time) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE carts SET locked_until = $2 WHERE id = $1`, cartID, until)
		return db.Classify(err)
	})
}

func (r *postgresRepo) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE carts
SET locked_until = NULL
WHERE locked_until IS NOT NULL AND locked_until <= $1
`, now)
	if err != nil {
		r.logger.Printf("cart repo: release locks error=%v", err)
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// Convert claims the cart with a conditional update so that exactly one conversion wins and every
// later mutation fails on the state guard. fn runs in the same transaction; its failure leaves the
// cart active.
func (r *postgresRepo) Convert(ctx context.Context, cartID string, state domain.ConversionState, fn ConvertFunc) (*domain.Cart, error) {
	var cart *domain.Cart
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var claimed string
		err := tx.QueryRow(ctx, `
UPDATE carts
SET conversion_state = $2, locked_until = NULL, version = version + 1, updated_at = now()
WHERE id = $1 AND conversion_state = 'active'
RETURNING id::text
`, cartID, string(state)).Scan(&claimed)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return stateError(ctx, tx, cartID)
			}
			return db.Classify(err)
		}

		cart, err = fetchCart(ctx, tx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return domain.InvalidState("cart %s is empty", cartID)
		}

		ref, err := fn(ctx, tx, cart)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE carts SET conversion_ref = $2 WHERE id = $1`, cartID, ref); err != nil {
			return db.Classify(err)
		}
		cart.ConversionRef = &ref
		return nil
	})
	if err != nil {
		r.logger.Printf("cart repo: convert id=%s state=%s error=%v", cartID, state, err)
		return nil, err
	}
	r.logger.Printf("cart repo: converted id=%s state=%s ref=%s", cartID, state, *cart.ConversionRef)
	return cart, nil
}

// MergeApplied returns the cart a merge token was applied to, or ErrNotFound.
func (r *postgresRepo) MergeApplied(ctx context.Context, token string) (string, error) {
	var cartID string
	err := r.db.QueryRow(ctx, `SELECT cart_id::text FROM cart_merges WHERE merge_token = $1`, token).Scan(&cartID)
	if err != nil {
		return "", db.Classify(err)
	}
	return cartID, nil
}

// Merge records the token and folds every line into the cart in one transaction. Quantities are
// read and capped after the state guard has locked the cart row, so concurrent item writes cannot
// push a line past its cap. It returns false without writing anything when the token was already
// recorded.
func (r *postgresRepo) Merge(ctx context.Context, cartID, token string, lines []MergeLine) ([]MergedLine, bool, error) {
	var merged []MergedLine
	err := r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO cart_merges (merge_token, cart_id)
VALUES ($1, $2)
ON CONFLICT (merge_token) DO NOTHING
`, token, cartID)
		if err != nil {
			return db.Classify(err)
		}
		if tag.RowsAffected() == 0 {
			return errMergeRecorded
		}

		existing, err := lineQuantities(ctx, tx, cartID)
		if err != nil {
			return err
		}
		merged = make([]MergedLine, 0, len(lines))
		for _, l := range lines {
			if l.Quantity <= 0 {
				continue
			}
			have := existing[l.VariantID]
			line := MergedLine{
				VariantID: l.VariantID,
				Requested: have + l.Quantity,
				Merged:    CappedQuantity(have, l.Quantity, l.Stock),
			}
			merged = append(merged, line)
			if line.Merged <= have {
				continue
			}
			if err := setItemQuantity(ctx, tx, cartID, l, line.Merged); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errMergeRecorded) {
		r.logger.Printf("cart repo: merge token already applied cart_id=%s", cartID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.logger.Printf("cart repo: merged cart_id=%s lines=%d", cartID, len(merged))
	return merged, true, nil
}

func lineQuantities(ctx context.Context, q db.Querier, cartID string) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT variant_id::text, quantity FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			variantID string
			qty       int
		)
		if err := rows.Scan(&variantID, &qty); err != nil {
			return nil, err
		}
		out[variantID] = qty
	}
	return out, db.Classify(rows.Err())
}

// setItemQuantity writes an absolute quantity. price_at_add is kept from the first insert.
func setItemQuantity(ctx context.Context, q db.Querier, cartID string, l MergeLine, quantity int) error {
	_, err := q.Exec(ctx, `
INSERT INTO cart_items (cart_id, variant_id, product_id, quantity, price_at_add_cents)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cart_id, variant_id) DO UPDATE
SET quantity = EXCLUDED.quantity,
    updated_at = now()
`, cartID, l.VariantID, l.ProductID, quantity, l.PriceAtAddCents)
	return db.Classify(err)
}

var errMergeRecorded = errors.New("merge token already recorded")

// mutate runs fn after the state guard, in one transaction.
func (r *postgresRepo) mutate(ctx context.Context, cartID string, fn func(tx pgx.Tx) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := guardActive(ctx, tx, cartID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// guardActive bumps the cart version only while the cart is active. The row lock it takes
// serialises item mutations against conversion.
func guardActive(ctx context.Context, tx pgx.Tx, cartID string) error {
	var version int
	err := tx.QueryRow(ctx, `
UPDATE carts
SET version = version + 1, updated_at = now()
WHERE id = $1 AND conversion_state = 'active'
RETURNING version
`, cartID).Scan(&version)
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return stateError(ctx, tx, cartID)
	}
	return db.Classify(err)
}

func stateError(ctx context.Context, q db.Querier, cartID string) error {
	var state string
	err := q.QueryRow(ctx, `SELECT conversion_state FROM carts WHERE id = $1`, cartID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("cart %s not found", cartID)
		}
		return db.Classify(err)
	}
	return domain.InvalidState("cart %s is %s", cartID, state)
}

func upsertItem(ctx context.Context, q db.Querier, cartID string, in ItemInput) error {
	_, err := q.Exec(ctx, `
INSERT INTO cart_items (cart_id, variant_id, product_id, quantity, price_at_add_cents)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cart_id, variant_id) DO UPDATE
SET quantity = cart_items.quantity + EXCLUDED.quantity,
    updated_at = now()
`, cartID, in.VariantID, in.ProductID, in.Quantity, in.PriceAtAddCents)
	return db.Classify(err)
}

func profileColumns(p domain.ProfileRef) (individual, business *string) {
	id := p.ID
	if p.Type == domain.ProfileBusiness {
		return nil, &id
	}
	return &id, nil
}

func fetchCart(ctx context.Context, q db.Querier, cartQuery string, args ...any) (*domain.Cart, error) {
	var (
		cart       domain.Cart
		individual *string
		business   *string
		state      string
	)
	err := q.QueryRow(ctx, cartQuery, args...).Scan(
		&cart.ID,
		&cart.CustomerID,
		&individual,
		&business,
		&cart.Currency,
		&cart.LockedUntil,
		&state,
		&cart.ConversionRef,
		&cart.Version,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, db.Classify(err)
	}
	cart.ConversionState = domain.ConversionState(state)
	switch {
	case business != nil:
		cart.Profile = domain.ProfileRef{Type: domain.ProfileBusiness, ID: *business}
	case individual != nil:
		cart.Profile = domain.ProfileRef{Type: domain.ProfileIndividual, ID: *individual}
	}

	const itemsQuery = `
SELECT id::text, cart_id::text, variant_id::text, product_id::text, quantity, price_at_add_cents, added_at, updated_at
FROM cart_items
WHERE cart_id = $1
ORDER BY added_at ASC, id ASC
`
	rows, err := q.Query(ctx, itemsQuery, cart.ID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.VariantID,
			&it.ProductID,
			&it.Quantity,
			&it.PriceAtAddCents,
			&it.AddedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return &cart, nil
}
