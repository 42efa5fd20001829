package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cedar-commerce/internal/domain"
	"cedar-commerce/internal/pricing"
	cartsvc "cedar-commerce/internal/service/cart"
	quotesvc "cedar-commerce/internal/service/quote"
	"cedar-commerce/internal/service/sweep"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

type productService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type cartService interface {
	Current(ctx context.Context, user domain.UserContext, kind domain.ProfileType) (*cartsvc.View, error)
	Get(ctx context.Context, user domain.UserContext, cartID string) (*cartsvc.View, error)
	AddItem(ctx context.Context, user domain.UserContext, cartID, variantID string, qty int) (*cartsvc.View, error)
	UpdateQuantity(ctx context.Context, user domain.UserContext, cartID, variantID string, qty int) (*cartsvc.View, error)
	RemoveItem(ctx context.Context, user domain.UserContext, cartID, variantID string) (*cartsvc.View, error)
	Clear(ctx context.Context, user domain.UserContext, cartID string) (*cartsvc.View, error)
	LockForCheckout(ctx context.Context, user domain.UserContext, cartID string) (*cartsvc.View, error)
	Unlock(ctx context.Context, user domain.UserContext, cartID string) (*cartsvc.View, error)
	Convert(ctx context.Context, user domain.UserContext, cartID string, target domain.ConversionTarget) (*cartsvc.Conversion, error)
	Merge(ctx context.Context, user domain.UserContext, kind domain.ProfileType, guest domain.GuestCart) (*cartsvc.MergeResult, error)
}

type quoteService interface {
	Get(ctx context.Context, actor quotesvc.Actor, id string) (*domain.Quote, error)
	ListForCustomer(ctx context.Context, user domain.UserContext) ([]domain.Quote, error)
	ListByStatus(ctx context.Context, status domain.QuoteStatus) ([]domain.Quote, error)
	Accept(ctx context.Context, actor quotesvc.Actor, id string) (*domain.Quote, error)
	Reject(ctx context.Context, actor quotesvc.Actor, id, reason string) (*domain.Quote, error)
	Revise(ctx context.Context, actor quotesvc.Actor, id string, items []domain.QuoteItem, note string) (*domain.Quote, error)
	AddMessage(ctx context.Context, actor quotesvc.Actor, id, body string, internal bool) (*domain.Quote, error)
}

type sweeper interface {
	Run(ctx context.Context) (sweep.Result, error)
}

// Authenticator resolves the Authorization header into a caller identity.
type Authenticator interface {
	FromHeader(header string) (domain.UserContext, error)
}

// Deps are the services the router dispatches to.
type Deps struct {
	ProductSvc     productService
	CartSvc        cartService
	QuoteSvc       quoteService
	Sweeper        sweeper
	Auth           Authenticator
	Prices         pricing.Policy
	CronSecretHash string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func (d Deps) validate() error {
	switch {
	case d.ProductSvc == nil:
		return errors.New("httpserver: product service required")
	case d.CartSvc == nil:
		return errors.New("httpserver: cart service required")
	case d.QuoteSvc == nil:
		return errors.New("httpserver: quote service required")
	case d.Sweeper == nil:
		return errors.New("httpserver: sweeper required")
	case d.Auth == nil:
		return errors.New("httpserver: authenticator required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery(), correlationMiddleware())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.CORSOrigins)))
	}
	if deps.RequestTimeout > 0 {
		router.Use(timeoutMiddleware(deps.RequestTimeout))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{deps: deps, logger: logger}

	store := router.Group("/store", identityMiddleware(deps.Auth))
	store.GET("/products", h.listProducts)
	store.GET("/products/:productId", h.getProduct)

	carts := store.Group("/carts", requireSignedIn())
	carts.GET("/current", h.currentCart)
	carts.POST("/items", h.addItem)
	carts.POST("/merge", h.mergeGuestCart)
	carts.GET("/:cartId", h.getCart)
	carts.POST("/:cartId/items", h.addItem)
	carts.PATCH("/:cartId/items/:variantId", h.updateItem)
	carts.DELETE("/:cartId/items/:variantId", h.removeItem)
	carts.DELETE("/:cartId/items", h.clearCart)
	carts.POST("/:cartId/lock", h.lockCart)
	carts.DELETE("/:cartId/lock", h.unlockCart)
	carts.POST("/:cartId/checkout", h.convertCart(domain.TargetOrder))
	carts.POST("/:cartId/quote", h.convertCart(domain.TargetQuote))

	quotes := store.Group("/quotes", requireSignedIn())
	quotes.GET("", h.listMyQuotes)
	quotes.GET("/:quoteId", h.getQuote(domain.PartyCustomer))
	quotes.POST("/:quoteId/accept", h.acceptQuote(domain.PartyCustomer))
	quotes.POST("/:quoteId/reject", h.rejectQuote(domain.PartyCustomer))
	quotes.POST("/:quoteId/counter", h.reviseQuote(domain.PartyCustomer))
	quotes.POST("/:quoteId/messages", h.postMessage(domain.PartyCustomer))

	admin := router.Group("/admin", identityMiddleware(deps.Auth), requireMerchant())
	admin.GET("/quotes", h.listQuotesByStatus)
	admin.GET("/quotes/:quoteId", h.getQuote(domain.PartyMerchant))
	admin.POST("/quotes/:quoteId/revise", h.reviseQuote(domain.PartyMerchant))
	admin.POST("/quotes/:quoteId/accept", h.acceptQuote(domain.PartyMerchant))
	admin.POST("/quotes/:quoteId/reject", h.rejectQuote(domain.PartyMerchant))
	admin.POST("/quotes/:quoteId/messages", h.postMessage(domain.PartyMerchant))

	cron := router.Group("/internal/cron", cronAuthMiddleware(deps.CronSecretHash))
	cron.GET("/sweep", h.runSweep)
	cron.POST("/sweep", h.runSweep)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", correlationHeader},
		ExposeHeaders:    []string{correlationHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
