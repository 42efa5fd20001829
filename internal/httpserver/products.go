package httpserver

import (
	"log"
	"net/http"

	"cedar-commerce/internal/domain"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	deps   Deps
	logger *log.Logger
}

type productResponse struct {
	domain.Product
	PricesVisible bool `json:"pricesVisible"`
}

func (h *handlers) listProducts(c *gin.Context) {
	products, err := h.deps.ProductSvc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	visible := h.deps.Prices.CanSeePrice(currentUser(c))
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, presentProduct(p, visible))
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if p.Status != domain.ProductActive && !currentUser(c).IsMerchant() {
		writeError(c, domain.NotFound("product %s not found", p.ID))
		return
	}
	c.JSON(http.StatusOK, presentProduct(*p, h.deps.Prices.CanSeePrice(currentUser(c))))
}

// presentProduct hides variant prices from callers the visibility policy excludes.
func presentProduct(p domain.Product, visible bool) productResponse {
	if !visible {
		variants := make([]domain.Variant, len(p.Variants))
		for i, v := range p.Variants {
			v.PriceCents = 0
			variants[i] = v
		}
		p.Variants = variants
	}
	return productResponse{Product: p, PricesVisible: visible}
}
