package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request correlation id between services.
const Header = "X-Correlation-Id"

type ctxKey struct{}

// WithID stores id on ctx, generating one when id is empty.
func WithID(ctx context.Context, id string) (context.Context, string) {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, id), id
}

func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
