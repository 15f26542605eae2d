package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mc-review/submission-engine/pkg/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// updateInfo assembles an UpdateInfo from its three nullable columns.
func updateInfo(at *time.Time, by *uuid.UUID, reason *string) *models.UpdateInfo {
	if at == nil {
		return nil
	}
	info := &models.UpdateInfo{UpdatedAt: *at}
	if by != nil {
		info.UpdatedBy = *by
	}
	if reason != nil {
		info.UpdatedReason = *reason
	}
	return info
}

// updateInfoArgs splits an optional UpdateInfo into column values.
func updateInfoArgs(info *models.UpdateInfo) (*time.Time, *uuid.UUID, *string) {
	if info == nil {
		return nil, nil, nil
	}
	at := info.UpdatedAt
	by := info.UpdatedBy
	reason := info.UpdatedReason
	return &at, &by, &reason
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func marshalFormData(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal form data: %w", err)
	}
	return data, nil
}
