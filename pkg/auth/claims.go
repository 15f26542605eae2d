// Package auth validates the bearer tokens that identify state and CMS users.
// Tokens are issued elsewhere; this package only verifies them against the issuer's JWKS.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Roles carried in the role claim.
const (
	RoleStateUser = "STATE_USER"
	RoleCMSUser   = "CMS_USER"
)

var (
	ErrInvalidAudience = errors.New("token audience not accepted")
	ErrInvalidSubject  = errors.New("token subject is not a user ID")
	ErrUnknownRole     = errors.New("token role not recognized")
	ErrMissingState    = errors.New("state user token has no state")
)

// Claims is the token payload. sub is the acting user's UUID.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	// State is the two-letter code a state user submits for. Empty for CMS users.
	State string `json:"state,omitempty"`
}

// UserID parses the subject as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidSubject
	}
	return id, nil
}

func (c *Claims) IsCMSUser() bool {
	return c.Role == RoleCMSUser
}

// Validate checks the claims this service relies on, after the signature has been verified.
func (c *Claims) Validate(audience string) error {
	if audience != "" && !hasAudience(c.Audience, audience) {
		return ErrInvalidAudience
	}
	if _, err := c.UserID(); err != nil {
		return err
	}
	switch c.Role {
	case RoleCMSUser:
	case RoleStateUser:
		if strings.TrimSpace(c.State) == "" {
			return ErrMissingState
		}
	default:
		return ErrUnknownRole
	}
	return nil
}

// CanAccessState reports whether the user may act on a submission from stateCode.
func (c *Claims) CanAccessState(stateCode string) bool {
	if c.IsCMSUser() {
		return true
	}
	return strings.EqualFold(c.State, stateCode)
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a copy of ctx carrying claims and the token they came from.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}
