package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cedar-commerce/internal/correlation"
	"cedar-commerce/internal/domain"
)

// Line is one priced line of a finalized snapshot.
type Line struct {
	VariantID       string  `json:"variantId"`
	ProductID       string  `json:"productId"`
	SKU             string  `json:"sku,omitempty"`
	Title           string  `json:"title,omitempty"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unitPriceCents"`
	DiscountPercent *string `json:"discountPercent,omitempty"`
	LineTotalCents  int64   `json:"lineTotalCents"`
}

// Snapshot is the server-derived cart or quote handed to the order backend. Prices are never taken
// from the client.
type Snapshot struct {
	Reference     string            `json:"reference"`
	CustomerID    string            `json:"customerId"`
	Profile       domain.ProfileRef `json:"profile"`
	Currency      string            `json:"currency"`
	Lines         []Line            `json:"lines"`
	SubtotalCents int64             `json:"subtotalCents"`
	DiscountCents int64             `json:"discountTotalCents"`
	TaxCents      int64             `json:"taxTotalCents"`
	ShippingCents int64             `json:"shippingTotalCents"`
	TotalCents    int64             `json:"totalCents"`
}

type orderResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the order/checkout backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger
}

func New(baseURL string, timeout time.Duration, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid order service url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{baseURL: u, http: &http.Client{Timeout: timeout}, logger: logger}, nil
}

// CreateOrder places an order for a converted cart. The snapshot reference doubles as the
// idempotency key, so a retried conversion cannot place a second order.
func (c *Client) CreateOrder(ctx context.Context, s Snapshot) (string, error) {
	return c.post(ctx, "/orders", "order:"+s.Reference, s)
}

// CreateDraftOrder reserves a draft order backing a quote request.
func (c *Client) CreateDraftOrder(ctx context.Context, s Snapshot) (string, error) {
	return c.post(ctx, "/draft-orders", "draft:"+s.Reference, s)
}

// ConfirmDraftOrder turns a draft into a real order at the negotiated prices.
func (c *Client) ConfirmDraftOrder(ctx context.Context, draftOrderID string, s Snapshot) (string, error) {
	if strings.TrimSpace(draftOrderID) == "" {
		return "", domain.Validation("draft order id required")
	}
	return c.post(ctx, "/draft-orders/"+url.PathEscape(draftOrderID)+"/confirm", "confirm:"+s.Reference, s)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if cid := correlation.FromContext(ctx); cid != "" {
		req.Header.Set(correlation.Header, cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("checkout: POST %s error=%v", path, err)
		return "", domain.Transient(err, "order service unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.Transient(err, "read order service response")
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Printf("checkout: POST %s status=%d", path, resp.StatusCode)
		return "", domain.Transient(errors.New(resp.Status), "order service unavailable")
	case resp.StatusCode == http.StatusNotFound:
		return "", domain.NotFound("order service: %s", message(raw, resp.Status))
	case resp.StatusCode >= 400:
		return "", domain.Validation("order service rejected request: %s", message(raw, resp.Status))
	}

	var out orderResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("checkout: unexpected response from %s: %q", path, raw)
	}
	c.logger.Printf("checkout: POST %s id=%s", path, out.ID)
	return out.ID, nil
}

func message(raw []byte, fallback string) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return fallback
}
