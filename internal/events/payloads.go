package events

import "cedar-commerce/internal/domain"

const (
	EventCartConverted      = "cart.converted"
	EventQuoteStatusChanged = "quote.status_changed"
)

type CartConverted struct {
	CartID     string                  `json:"cartId"`
	CustomerID string                  `json:"customerId"`
	Target     domain.ConversionTarget `json:"target"`
	Reference  string                  `json:"reference"`
	Currency   string                  `json:"currency"`
	TotalCents int64                   `json:"totalCents"`
}

type QuoteStatusChanged struct {
	QuoteID    string             `json:"quoteId"`
	CustomerID string             `json:"customerId"`
	From       domain.QuoteStatus `json:"from"`
	To         domain.QuoteStatus `json:"to"`
	Actor      domain.Party       `json:"actor"`
	OrderID    string             `json:"orderId,omitempty"`
}
