package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cedar-commerce/internal/domain"
	"github.com/shopspring/decimal"
)

type CatalogWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
}

// CSVImporter reads catalog CSV exports and inserts/updates products with their variants.
//
// A row with a handle starts a product and carries its first variant. Following rows without a
// handle add further variants (when they have a SKU) or images to that product.
type CSVImporter struct {
	reader *csv.Reader
	repo   CatalogWriter
}

func NewCSVImporter(r io.Reader, repo CatalogWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{reader: csvr, repo: repo}
}

// Result counts what a run wrote.
type Result struct {
	Products int
	Variants int
}

type productRow struct {
	Handle    string
	Name      string
	Desc      string
	Status    domain.ProductStatus
	ImageURLs []string
	Variants  []variantRow
}

type variantRow struct {
	Line     int
	SKU      string
	Title    string
	Cents    int64
	Currency string
	Stock    int
	Active   bool
}

// Run parses CSV rows and upserts products grouped by handle.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result
	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["handle"]; !ok {
		return res, errors.New("read headers: missing handle column")
	}

	var current *productRow
	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", line, err)
		}

		handle := pick(record, index, "handle")
		if handle != "" {
			if current != nil {
				if err := i.save(ctx, current, &res); err != nil {
					return res, err
				}
			}
			current = &productRow{
				Handle: handle,
				Name:   pick(record, index, "name.en"),
				Desc:   pick(record, index, "description.en"),
				Status: domain.ProductStatus(strings.ToLower(pick(record, index, "status"))),
			}
		}
		if current == nil {
			return res, fmt.Errorf("row %d: variant row before any product handle", line)
		}

		if sku := pick(record, index, "variants.sku"); sku != "" {
			v, err := parseVariant(record, index, line)
			if err != nil {
				return res, err
			}
			current.Variants = append(current.Variants, v)
		}
		// Continuation rows (images) belong to the current product.
		if url := pick(record, index, "variants.images.url"); url != "" {
			current.ImageURLs = append(current.ImageURLs, url)
		}
	}

	if current != nil {
		if err := i.save(ctx, current, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (i *CSVImporter) save(ctx context.Context, row *productRow, res *Result) error {
	if row.Name == "" {
		return fmt.Errorf("invalid product row (missing name) for handle %q", row.Handle)
	}
	if len(row.Variants) == 0 {
		return fmt.Errorf("product %q has no variants", row.Handle)
	}
	status := row.Status
	switch status {
	case "":
		status = domain.ProductActive
	case domain.ProductActive, domain.ProductDraft, domain.ProductDiscontinued:
	default:
		return fmt.Errorf("product %q: unknown status %q", row.Handle, row.Status)
	}

	attrs := map[string]interface{}{}
	if len(row.ImageURLs) > 0 {
		attrs["images"] = row.ImageURLs
	}

	p, err := i.repo.Upsert(ctx, domain.Product{
		Handle:      row.Handle,
		Name:        row.Name,
		Description: row.Desc,
		Status:      status,
		Attributes:  attrs,
	})
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Handle, err)
	}
	res.Products++

	for _, v := range row.Variants {
		_, err := i.repo.UpsertVariant(ctx, domain.Variant{
			ProductID:  p.ID,
			SKU:        v.SKU,
			Title:      v.Title,
			PriceCents: v.Cents,
			Currency:   v.Currency,
			Stock:      v.Stock,
			Active:     v.Active,
		})
		if err != nil {
			return fmt.Errorf("upsert variant %q (row %d): %w", v.SKU, v.Line, err)
		}
		res.Variants++
	}
	return nil
}

func parseVariant(record []string, index map[string]int, line int) (variantRow, error) {
	v := variantRow{
		Line:     line,
		SKU:      pick(record, index, "variants.sku"),
		Title:    pick(record, index, "variants.title"),
		Currency: strings.ToUpper(pick(record, index, "variants.prices.value.currencyCode")),
		Active:   true,
	}
	if v.Currency == "" {
		return v, fmt.Errorf("row %d: missing currency for %q", line, v.SKU)
	}

	// Minor units win; a decimal major-unit amount is accepted as a fallback.
	if cents := pick(record, index, "variants.prices.value.centAmount"); cents != "" {
		n, err := strconv.ParseInt(cents, 10, 64)
		if err != nil || n < 0 {
			return v, fmt.Errorf("row %d: invalid centAmount %q", line, cents)
		}
		v.Cents = n
	} else if amount := pick(record, index, "variants.prices.value.amount"); amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil || d.IsNegative() {
			return v, fmt.Errorf("row %d: invalid amount %q", line, amount)
		}
		v.Cents = d.Shift(2).Round(0).IntPart()
	} else {
		return v, fmt.Errorf("row %d: missing price for %q", line, v.SKU)
	}

	if stock := pick(record, index, "variants.stock"); stock != "" {
		n, err := strconv.Atoi(stock)
		if err != nil || n < 0 {
			return v, fmt.Errorf("row %d: invalid stock %q", line, stock)
		}
		v.Stock = n
	}
	if active := pick(record, index, "variants.active"); active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			return v, fmt.Errorf("row %d: invalid active flag %q", line, active)
		}
		v.Active = b
	}
	if v.Title == "" {
		v.Title = v.SKU
	}
	return v, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
