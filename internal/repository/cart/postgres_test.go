package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var (
	cartCols = []string{"id", "customer_id", "individual_profile_id", "business_profile_id", "currency", "locked_until", "conversion_state", "conversion_ref", "version", "created_at", "updated_at"}
	itemCols = []string{"id", "cart_id", "variant_id", "product_id", "quantity", "price_at_add_cents", "added_at", "updated_at"}
	ts       = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
)

func cartRow(id, state string) *pgxmock.Rows {
	profile := "b-1"
	return pgxmock.NewRows(cartCols).AddRow(id, "u-1", nil, &profile, "INR", nil, state, nil, 3, ts, ts)
}

func TestGetOrCreateActive_ExistingCartIsLookedUpPerCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	business := "b-1"
	mock.ExpectQuery(`INSERT INTO carts .* ON CONFLICT DO NOTHING`).
		WithArgs("u-1", (*string)(nil), &business, "INR").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM carts WHERE customer_id = \$1 AND business_profile_id = \$2 AND conversion_state = 'active'`).
		WithArgs("u-1", "b-1").
		WillReturnRows(cartRow("c-1", "active"))
	mock.ExpectQuery(`FROM cart_items`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows(itemCols))

	cart, err := NewPostgres(mock, nil).GetOrCreateActive(context.Background(), CreateCartInput{
		CustomerID: "u-1",
		Profile:    domain.ProfileRef{Type: domain.ProfileBusiness, ID: "b-1"},
		Currency:   "INR",
	})
	require.NoError(t, err)
	require.Equal(t, "c-1", cart.ID)
	require.Equal(t, "u-1", cart.CustomerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_ConvertedCartIsInvalidState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET version = version \+ 1`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT conversion_state FROM carts`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"conversion_state"}).AddRow("converted_to_order"))
	mock.ExpectRollback()

	repo := NewPostgres(mock, nil)
	err = repo.AddItem(context.Background(), "c-1", ItemInput{VariantID: "v-1", ProductID: "p-1", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_MissingCartIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET version = version \+ 1`).WithArgs("c-x").
		WillReturnRows(pgxmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT conversion_state FROM carts`).WithArgs("c-x").
		WillReturnRows(pgxmock.NewRows([]string{"conversion_state"}))
	mock.ExpectRollback()

	err = NewPostgres(mock, nil).AddItem(context.Background(), "c-x", ItemInput{VariantID: "v-1", ProductID: "p-1", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_UpsertsAfterGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET version = version \+ 1`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO cart_items .* ON CONFLICT \(cart_id, variant_id\) DO UPDATE SET quantity = cart_items.quantity \+ EXCLUDED.quantity`).
		WithArgs("c-1", "v-1", "p-1", 2, int64(50000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = NewPostgres(mock, nil).AddItem(context.Background(), "c-1", ItemInput{VariantID: "v-1", ProductID: "p-1", Quantity: 2, PriceAtAddCents: 50000})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_RunsCallbackInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET conversion_state = \$2`).WithArgs("c-1", "converted_to_order").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectQuery(`FROM carts WHERE id = \$1`).WithArgs("c-1").WillReturnRows(cartRow("c-1", "converted_to_order"))
	mock.ExpectQuery(`FROM cart_items`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows(itemCols).AddRow("i-1", "c-1", "v-1", "p-1", 2, int64(50000), ts, ts))
	mock.ExpectExec(`UPDATE carts SET conversion_ref = \$2`).WithArgs("c-1", "order-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	var seen *domain.Cart
	cart, err := NewPostgres(mock, nil).Convert(context.Background(), "c-1", domain.CartConvertedToOrder,
		func(_ context.Context, _ db.Querier, c *domain.Cart) (string, error) {
			seen = c
			return "order-9", nil
		})
	require.NoError(t, err)
	require.Len(t, seen.Items, 1)
	require.Equal(t, domain.ProfileRef{Type: domain.ProfileBusiness, ID: "b-1"}, cart.Profile)
	require.Equal(t, "order-9", *cart.ConversionRef)
	require.Equal(t, domain.CartConvertedToOrder, cart.ConversionState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_EmptyCartRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET conversion_state = \$2`).WithArgs("c-1", "converted_to_quote").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectQuery(`FROM carts WHERE id = \$1`).WithArgs("c-1").WillReturnRows(cartRow("c-1", "converted_to_quote"))
	mock.ExpectQuery(`FROM cart_items`).WithArgs("c-1").WillReturnRows(pgxmock.NewRows(itemCols))
	mock.ExpectRollback()

	called := false
	_, err = NewPostgres(mock, nil).Convert(context.Background(), "c-1", domain.CartConvertedToQuote,
		func(context.Context, db.Querier, *domain.Cart) (string, error) {
			called = true
			return "", nil
		})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_CallbackFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET conversion_state = \$2`).WithArgs("c-1", "converted_to_order").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectQuery(`FROM carts WHERE id = \$1`).WithArgs("c-1").WillReturnRows(cartRow("c-1", "converted_to_order"))
	mock.ExpectQuery(`FROM cart_items`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows(itemCols).AddRow("i-1", "c-1", "v-1", "p-1", 1, int64(0), ts, ts))
	mock.ExpectRollback()

	boom := domain.Transient(errors.New("connection refused"), "order service unavailable")
	_, err = NewPostgres(mock, nil).Convert(context.Background(), "c-1", domain.CartConvertedToOrder,
		func(context.Context, db.Querier, *domain.Cart) (string, error) {
			return "", boom
		})
	require.ErrorIs(t, err, domain.ErrTransient)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_AlreadyConverted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET conversion_state = \$2`).WithArgs("c-1", "converted_to_order").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT conversion_state FROM carts`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"conversion_state"}).AddRow("converted_to_quote"))
	mock.ExpectRollback()

	_, err = NewPostgres(mock, nil).Convert(context.Background(), "c-1", domain.CartConvertedToOrder,
		func(context.Context, db.Querier, *domain.Cart) (string, error) {
			t.Fatalf("callback must not run for a converted cart")
			return "", nil
		})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_RecordedTokenWritesNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET version = version \+ 1`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectExec(`INSERT INTO cart_merges`).WithArgs("tok-1", "c-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	merged, applied, err := NewPostgres(mock, nil).Merge(context.Background(), "c-1", "tok-1", []MergeLine{{VariantID: "v-1", ProductID: "p-1", Quantity: 1, Stock: 5}})
	require.NoError(t, err)
	require.False(t, applied)
	require.Empty(t, merged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_CapsAgainstQuantitiesReadUnderLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE carts SET version = version \+ 1`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectExec(`INSERT INTO cart_merges`).WithArgs("tok-1", "c-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// v-1 already holds 3, written by a request that committed before this merge took the lock.
	mock.ExpectQuery(`SELECT variant_id::text, quantity FROM cart_items WHERE cart_id = \$1`).WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"variant_id", "quantity"}).AddRow("v-1", 3).AddRow("v-4", 6))
	mock.ExpectExec(`INSERT INTO cart_items .* SET quantity = EXCLUDED.quantity`).WithArgs("c-1", "v-1", "p-1", 4, int64(50000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cart_items .* SET quantity = EXCLUDED.quantity`).WithArgs("c-1", "v-2", "p-2", 2, int64(9000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	merged, applied, err := NewPostgres(mock, nil).Merge(context.Background(), "c-1", "tok-1", []MergeLine{
		{VariantID: "v-1", ProductID: "p-1", Quantity: 2, Stock: 4, PriceAtAddCents: 50000},
		{VariantID: "v-2", ProductID: "p-2", Quantity: 2, Stock: 10, PriceAtAddCents: 9000},
		{VariantID: "v-3", ProductID: "p-3", Quantity: 1, Stock: 0},
		{VariantID: "v-4", ProductID: "p-4", Quantity: 1, Stock: 2},
		{VariantID: "v-5", ProductID: "p-5", Quantity: 0, Stock: 5},
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, []MergedLine{
		{VariantID: "v-1", Requested: 5, Merged: 4},
		{VariantID: "v-2", Requested: 2, Merged: 2},
		{VariantID: "v-3", Requested: 1, Merged: 0},
		{VariantID: "v-4", Requested: 7, Merged: 6},
	}, merged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCappedQuantity(t *testing.T) {
	cases := []struct{ existing, added, stock, want int }{
		{1, 2, 10, 3},
		{0, 9, 4, 4},
		{6, 1, 2, 6},
		{0, 1, 0, 0},
	}
	for _, tc := range cases {
		if got := CappedQuantity(tc.existing, tc.added, tc.stock); got != tc.want {
			t.Fatalf("CappedQuantity(%d, %d, %d) = %d, want %d", tc.existing, tc.added, tc.stock, got, tc.want)
		}
	}
}

func TestReleaseExpiredLocks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE carts SET locked_until = NULL`).WithArgs(ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := NewPostgres(mock, nil).ReleaseExpiredLocks(context.Background(), ts)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
