// Package identity turns identity-provider bearer tokens into a domain.UserContext.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cedar-commerce/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier checks HS256 tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// FromHeader resolves an Authorization header value. An empty header is a guest.
func (v *Verifier) FromHeader(header string) (domain.UserContext, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.Guest(), nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return domain.UserContext{}, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return v.Verify(strings.TrimSpace(token))
}

func (v *Verifier) Verify(token string) (domain.UserContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return domain.UserContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.UserContext{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Normalize(sub, claims), nil
}

// Normalize maps the provider's metadata bag onto a UserContext. Providers disagree on
// key names, so several spellings are accepted. Nested "metadata" objects are flattened.
func Normalize(userID string, bag map[string]any) domain.UserContext {
	flat := make(map[string]any, len(bag))
	for k, v := range bag {
		flat[k] = v
	}
	for _, nested := range []string{"metadata", "public_metadata", "publicMetadata"} {
		if m, ok := bag[nested].(map[string]any); ok {
			for k, v := range m {
				if _, exists := flat[k]; !exists {
					flat[k] = v
				}
			}
		}
	}

	u := domain.UserContext{
		UserID:              userID,
		IndividualProfileID: str(flat, "individual_profile_id", "individualProfileId"),
		BusinessProfileID:   str(flat, "business_profile_id", "businessProfileId"),
		Role:                strings.ToLower(str(flat, "role")),
	}

	switch strings.ToLower(str(flat, "account_type", "accountType", "type")) {
	case "business", "b2b", "company":
		u.AccountType = domain.AccountBusiness
	default:
		u.AccountType = domain.AccountIndividual
	}

	u.Verified = verified(flat)
	return u
}

func verified(flat map[string]any) bool {
	for _, key := range []string{"is_verified", "isVerified", "verified"} {
		switch v := flat[key].(type) {
		case bool:
			return v
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b
			}
		}
	}
	status := strings.ToLower(str(flat, "verification_status", "verificationStatus"))
	return status == "verified" || status == "approved"
}

func str(flat map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := flat[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
