package httpserver

import (
	"net/http"

	"cedar-commerce/internal/domain"
	"cedar-commerce/internal/pricing"
	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	MergeToken string                 `json:"mergeToken"`
	Items      []domain.GuestCartItem `json:"items"`
}

func profileParam(c *gin.Context) domain.ProfileType {
	return domain.ProfileType(c.Query("profile"))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, domain.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *handlers) currentCart(c *gin.Context) {
	view, err := h.deps.CartSvc.Current(c.Request.Context(), currentUser(c), profileParam(c))
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) getCart(c *gin.Context) {
	view, err := h.deps.CartSvc.Get(c.Request.Context(), currentUser(c), c.Param("cartId"))
	respond(c, http.StatusOK, view, err)
}

// addItem serves both /carts/items (current cart) and /carts/:cartId/items.
func (h *handlers) addItem(c *gin.Context) {
	var req addItemRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.deps.CartSvc.AddItem(c.Request.Context(), currentUser(c), c.Param("cartId"), req.VariantID, req.Quantity)
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) updateItem(c *gin.Context) {
	var req quantityRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.deps.CartSvc.UpdateQuantity(c.Request.Context(), currentUser(c), c.Param("cartId"), c.Param("variantId"), req.Quantity)
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) removeItem(c *gin.Context) {
	view, err := h.deps.CartSvc.RemoveItem(c.Request.Context(), currentUser(c), c.Param("cartId"), c.Param("variantId"))
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) clearCart(c *gin.Context) {
	view, err := h.deps.CartSvc.Clear(c.Request.Context(), currentUser(c), c.Param("cartId"))
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) lockCart(c *gin.Context) {
	view, err := h.deps.CartSvc.LockForCheckout(c.Request.Context(), currentUser(c), c.Param("cartId"))
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) unlockCart(c *gin.Context) {
	view, err := h.deps.CartSvc.Unlock(c.Request.Context(), currentUser(c), c.Param("cartId"))
	respond(c, http.StatusOK, view, err)
}

func (h *handlers) convertCart(target domain.ConversionTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := h.deps.CartSvc.Convert(c.Request.Context(), currentUser(c), c.Param("cartId"), target)
		if err != nil {
			writeError(c, err)
			return
		}
		visible := h.deps.Prices.CanSeePrice(currentUser(c))
		out := *conv
		if !visible {
			out.Summary = pricing.Redact(out.Summary)
		}
		if out.Quote != nil {
			q := out.Quote.ForCustomer()
			if !visible {
				q = pricing.RedactQuote(q)
			}
			out.Quote = &q
		}
		c.JSON(http.StatusCreated, out)
	}
}

func (h *handlers) mergeGuestCart(c *gin.Context) {
	var req mergeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.deps.CartSvc.Merge(c.Request.Context(), currentUser(c), profileParam(c), domain.GuestCart{
		MergeToken: req.MergeToken,
		Items:      req.Items,
	})
	respond(c, http.StatusOK, res, err)
}

func respond(c *gin.Context, status int, body any, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, body)
}
