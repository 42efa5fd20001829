package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cedar-commerce/internal/correlation"
	"cedar-commerce/internal/domain"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	correlationHeader = correlation.Header
	userKey           = "cedar.user"
)

// correlationMiddleware propagates the caller's correlation id, or mints one, on the request
// context and the response.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := correlation.WithID(c.Request.Context(), strings.TrimSpace(c.GetHeader(correlationHeader)))
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// identityMiddleware resolves the caller once per request. A missing header is a guest; a bad
// token is rejected rather than downgraded.
func identityMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.FromHeader(c.GetHeader("Authorization"))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserContext {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(domain.UserContext); ok {
			return u
		}
	}
	return domain.Guest()
}

func requireSignedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).IsGuest() {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		c.Next()
	}
}

func requireMerchant() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user.IsGuest() {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		if !user.IsMerchant() {
			abortJSON(c, http.StatusForbidden, "forbidden", "merchant access required")
			return
		}
		c.Next()
	}
}

// cronAuthMiddleware checks the bearer secret against its bcrypt hash. Without a configured hash
// the cron routes are disabled.
func cronAuthMiddleware(secretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretHash == "" {
			abortJSON(c, http.StatusForbidden, "forbidden", "cron endpoint disabled")
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "cron secret required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(token)); err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid cron secret")
			return
		}
		c.Next()
	}
}
