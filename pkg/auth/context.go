package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RequireUserIDFromContext returns the acting user's ID from the claims in ctx.
func RequireUserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, fmt.Errorf("authentication required: no claims in context")
	}
	return claims.UserID()
}

// RequireClaimsFromContext returns the claims in ctx or an error if the request was not authenticated.
func RequireClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return nil, fmt.Errorf("authentication required: no claims in context")
	}
	return claims, nil
}
