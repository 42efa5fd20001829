package httpserver

import (
	"net/http"

	"cedar-commerce/internal/domain"
	quotesvc "cedar-commerce/internal/service/quote"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type quoteResponse struct {
	*domain.Quote
	DisplayStatus domain.DisplayStatus `json:"displayStatus"`
}

type quoteItemRequest struct {
	VariantID       string           `json:"variantId"`
	Quantity        int              `json:"quantity"`
	UnitPriceCents  int64            `json:"unitPriceCents"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
}

type reviseRequest struct {
	Items []quoteItemRequest `json:"items"`
	Note  string             `json:"note"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type messageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

func presentQuote(q *domain.Quote) quoteResponse {
	return quoteResponse{Quote: q, DisplayStatus: q.DisplayStatus()}
}

func presentQuotes(quotes []domain.Quote) []quoteResponse {
	out := make([]quoteResponse, 0, len(quotes))
	for i := range quotes {
		out = append(out, presentQuote(&quotes[i]))
	}
	return out
}

func actorFor(c *gin.Context, party domain.Party) quotesvc.Actor {
	user := currentUser(c)
	if party == domain.PartyMerchant {
		return quotesvc.Merchant(user)
	}
	return quotesvc.Customer(user)
}

func writeQuote(c *gin.Context, q *domain.Quote, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presentQuote(q))
}

func (h *handlers) listMyQuotes(c *gin.Context) {
	quotes, err := h.deps.QuoteSvc.ListForCustomer(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": presentQuotes(quotes), "count": len(quotes)})
}

func (h *handlers) listQuotesByStatus(c *gin.Context) {
	quotes, err := h.deps.QuoteSvc.ListByStatus(c.Request.Context(), domain.QuoteStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": presentQuotes(quotes), "count": len(quotes)})
}

func (h *handlers) getQuote(party domain.Party) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := h.deps.QuoteSvc.Get(c.Request.Context(), actorFor(c, party), c.Param("quoteId"))
		writeQuote(c, q, err)
	}
}

func (h *handlers) acceptQuote(party domain.Party) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := h.deps.QuoteSvc.Accept(c.Request.Context(), actorFor(c, party), c.Param("quoteId"))
		writeQuote(c, q, err)
	}
}

func (h *handlers) rejectQuote(party domain.Party) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectRequest
		if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
			return
		}
		q, err := h.deps.QuoteSvc.Reject(c.Request.Context(), actorFor(c, party), c.Param("quoteId"), req.Reason)
		writeQuote(c, q, err)
	}
}

func (h *handlers) reviseQuote(party domain.Party) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviseRequest
		if !bindJSON(c, &req) {
			return
		}
		items := make([]domain.QuoteItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, domain.QuoteItem{
				VariantID:       it.VariantID,
				Quantity:        it.Quantity,
				UnitPriceCents:  it.UnitPriceCents,
				DiscountPercent: it.DiscountPercent,
			})
		}
		q, err := h.deps.QuoteSvc.Revise(c.Request.Context(), actorFor(c, party), c.Param("quoteId"), items, req.Note)
		writeQuote(c, q, err)
	}
}

func (h *handlers) postMessage(party domain.Party) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req messageRequest
		if !bindJSON(c, &req) {
			return
		}
		q, err := h.deps.QuoteSvc.AddMessage(c.Request.Context(), actorFor(c, party), c.Param("quoteId"), req.Body, req.Internal)
		writeQuote(c, q, err)
	}
}

// runSweep expires overdue quotes and releases stale checkout locks. Safe to call repeatedly.
func (h *handlers) runSweep(c *gin.Context) {
	res, err := h.deps.Sweeper.Run(c.Request.Context())
	if err != nil {
		h.logger.Printf("httpserver: sweep error=%v", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
