package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"cedar-commerce/internal/db"
	"cedar-commerce/internal/domain"
)

type postgresRepo struct {
	db     db.Querier
	logger *log.Logger
}

func NewPostgres(q db.Querier, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{db: q, logger: logger}
}

const variantColumns = `
v.id::text, v.product_id::text, p.name, p.status, v.sku, v.title, v.price_cents, v.currency, v.stock, v.active, v.created_at`

func (r *postgresRepo) List(ctx context.Context, status domain.ProductStatus) ([]domain.Product, error) {
	const q = `
SELECT id::text, handle, name, description, status, attributes, created_at
FROM products
WHERE ($1 = '' OR status = $1)
ORDER BY name ASC
`
	rows, err := r.db.Query(ctx, q, string(status))
	if err != nil {
		r.logger.Printf("product repo: list status=%s error=%v", status, err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var result []domain.Product
	index := map[string]int{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Handle, &p.Name, &p.Description, &p.Status, &p.Attributes, &p.CreatedAt); err != nil {
			return nil, err
		}
		index[p.ID] = len(result)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("product repo: list rows status=%s error=%v", status, err)
		return nil, db.Classify(err)
	}
	if len(result) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(result))
	for _, p := range result {
		ids = append(ids, p.ID)
	}
	variants, err := r.variantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if pos, ok := index[v.ProductID]; ok {
			result[pos].Variants = append(result[pos].Variants, v)
		}
	}
	r.logger.Printf("product repo: list status=%s count=%d", status, len(result))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	const q = `
SELECT id::text, handle, name, description, status, attributes, created_at
FROM products
WHERE id = $1
`
	var p domain.Product
	err := r.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.Handle, &p.Name, &p.Description, &p.Status, &p.Attributes, &p.CreatedAt)
	if err != nil {
		err = db.Classify(err)
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("product repo: get id=%s not found", id)
		} else {
			r.logger.Printf("product repo: get id=%s error=%v", id, err)
		}
		return nil, err
	}
	variants, err := r.variantsFor(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return &p, nil
}

// GetVariant returns the variant joined with its product's name and status.
func (r *postgresRepo) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	q := `SELECT` + variantColumns + `
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.id = $1
`
	var v domain.Variant
	err := r.db.QueryRow(ctx, q, id).Scan(&v.ID, &v.ProductID, &v.ProductName, &v.ProductStatus, &v.SKU, &v.Title, &v.PriceCents, &v.Currency, &v.Stock, &v.Active, &v.CreatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &v, nil
}

func (r *postgresRepo) variantsFor(ctx context.Context, productIDs []string) ([]domain.Variant, error) {
	q := `SELECT` + variantColumns + `
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.product_id = ANY($1::uuid[])
ORDER BY v.sku ASC
`
	rows, err := r.db.Query(ctx, q, productIDs)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.ProductName, &v.ProductStatus, &v.SKU, &v.Title, &v.PriceCents, &v.Currency, &v.Stock, &v.Active, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, handle, name, description, status, attributes)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, COALESCE($6, '{}'::jsonb))
ON CONFLICT (handle) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    status = EXCLUDED.status,
    attributes = EXCLUDED.attributes,
    updated_at = now()
RETURNING id::text, created_at
`
	if product.Status == "" {
		product.Status = domain.ProductActive
	}
	res := product
	err := r.db.QueryRow(ctx, q,
		product.ID,
		product.Handle,
		product.Name,
		product.Description,
		string(product.Status),
		product.Attributes,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Printf("product repo: upsert handle=%s error=%v", product.Handle, err)
		return nil, db.Classify(err)
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for handle=%s existing_id=%s import_id=%s", product.Handle, res.ID, product.ID)
	}
	r.logger.Printf("product repo: upserted handle=%s id=%s", res.Handle, res.ID)
	return &res, nil
}

func (r *postgresRepo) UpsertVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	const q = `
INSERT INTO product_variants (id, product_id, sku, title, price_cents, currency, stock, active)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (sku) DO UPDATE SET
    product_id = EXCLUDED.product_id,
    title = EXCLUDED.title,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    stock = EXCLUDED.stock,
    active = EXCLUDED.active,
    updated_at = now()
RETURNING id::text, created_at
`
	res := variant
	err := r.db.QueryRow(ctx, q,
		variant.ID,
		variant.ProductID,
		variant.SKU,
		variant.Title,
		variant.PriceCents,
		variant.Currency,
		variant.Stock,
		variant.Active,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Printf("product repo: upsert variant sku=%s error=%v", variant.SKU, err)
		return nil, db.Classify(err)
	}
	r.logger.Printf("product repo: upserted variant sku=%s id=%s", res.SKU, res.ID)
	return &res, nil
}

func (r *postgresRepo) SetStock(ctx context.Context, variantID string, stock int) error {
	if stock < 0 {
		return domain.Validation("stock must not be negative")
	}
	tag, err := r.db.Exec(ctx, `UPDATE product_variants SET stock = $2, updated_at = now() WHERE id = $1`, variantID, stock)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) SetPrice(ctx context.Context, variantID string, priceCents int64) error {
	if priceCents < 0 {
		return domain.Validation("price must not be negative")
	}
	tag, err := r.db.Exec(ctx, `UPDATE product_variants SET price_cents = $2, updated_at = now() WHERE id = $1`, variantID, priceCents)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
