package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/auth"
	"github.com/mc-review/submission-engine/pkg/models"
)

// requireStateUser rejects callers that are not state users. Only states create, edit and
// submit their own submissions.
func requireStateUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*auth.Claims, bool) {
	claims, err := auth.RequireClaimsFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	if claims.IsCMSUser() {
		forbidden(w, logger, "Only state users can change a submission")
		return nil, false
	}
	return claims, true
}

// actingUser returns the caller's user ID.
func actingUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return userID, true
}

func canAccess(r *http.Request, stateCode string) bool {
	claims, ok := auth.GetClaims(r.Context())
	return ok && claims != nil && claims.CanAccessState(stateCode)
}

func errOtherState(side models.Side, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s belongs to another state", apperrors.ErrForbidden, side, id)
}

func forbidden(w http.ResponseWriter, logger *zap.Logger, message string) {
	if err := ErrorResponse(w, http.StatusForbidden, "forbidden", message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func badRequest(w http.ResponseWriter, logger *zap.Logger, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
