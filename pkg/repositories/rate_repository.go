package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/models"
)

// RateRepository provides data access for rates and their revisions.
type RateRepository interface {
	Create(ctx context.Context, rate *models.Rate) error
	GetByID(ctx context.Context, rateID uuid.UUID) (*models.Rate, error)

	CreateRevision(ctx context.Context, rev *models.RateRevision) error
	GetRevision(ctx context.Context, revisionID uuid.UUID) (*models.RateRevision, error)
	// ListRevisions returns all revisions of a rate, oldest first.
	ListRevisions(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevision, error)
	GetRevisionsByIDs(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.RateRevision, error)
	UpdateDraftFormData(ctx context.Context, revisionID uuid.UUID, formData models.RateFormData) error
}

type rateRepository struct{}

// NewRateRepository creates a new RateRepository.
func NewRateRepository() RateRepository {
	return &rateRepository{}
}

var _ RateRepository = (*rateRepository)(nil)

const rateRevisionColumns = `
		id, rate_id, form_data,
		submitted_at, submitted_by, submit_reason,
		unlocked_at, unlocked_by, unlock_reason,
		created_at, updated_at`

func (r *rateRepository) Create(ctx context.Context, rate *models.Rate) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO states (state_code) VALUES ($1)
		ON CONFLICT (state_code) DO NOTHING`, rate.StateCode); err != nil {
		return fmt.Errorf("failed to ensure state: %w", err)
	}

	now := time.Now()
	err = q.QueryRow(ctx, `
		INSERT INTO rates (state_code, created_at, updated_at)
		VALUES ($1, $2, $2)
		RETURNING id, created_at, updated_at`,
		rate.StateCode, now,
	).Scan(&rate.ID, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rate: %w", err)
	}

	rate.Status = models.StatusDraft
	return nil
}

func (r *rateRepository) GetByID(ctx context.Context, rateID uuid.UUID) (*models.Rate, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rate models.Rate
	err = q.QueryRow(ctx, `
		SELECT id, state_code, created_at, updated_at
		FROM rates
		WHERE id = $1`, rateID,
	).Scan(&rate.ID, &rate.StateCode, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	return &rate, nil
}

func (r *rateRepository) CreateRevision(ctx context.Context, rev *models.RateRevision) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	formData, err := marshalFormData(rev.FormData)
	if err != nil {
		return err
	}
	unlockedAt, unlockedBy, unlockReason := updateInfoArgs(rev.UnlockInfo)

	now := time.Now()
	err = q.QueryRow(ctx, `
		INSERT INTO rate_revisions (
			rate_id, form_data, unlocked_at, unlocked_by, unlock_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`,
		rev.RateID, formData, unlockedAt, unlockedBy, unlockReason, now,
	).Scan(&rev.ID, &rev.CreatedAt, &rev.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return apperrors.ErrDraftExists
		}
		return fmt.Errorf("failed to create rate revision: %w", err)
	}
	return nil
}

func (r *rateRepository) GetRevision(ctx context.Context, revisionID uuid.UUID) (*models.RateRevision, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rateRevisionColumns + `
		FROM rate_revisions
		WHERE id = $1`

	rev, err := scanRateRevision(q.QueryRow(ctx, query, revisionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return rev, nil
}

func (r *rateRepository) ListRevisions(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevision, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rateRevisionColumns + `
		FROM rate_revisions
		WHERE rate_id = $1
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, rateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate revisions: %w", err)
	}
	defer rows.Close()

	var revisions []*models.RateRevision
	for rows.Next() {
		rev, err := scanRateRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate revisions: %w", err)
	}
	return revisions, nil
}

func (r *rateRepository) GetRevisionsByIDs(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.RateRevision, error) {
	result := make(map[uuid.UUID]*models.RateRevision, len(revisionIDs))
	if len(revisionIDs) == 0 {
		return result, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rateRevisionColumns + `
		FROM rate_revisions
		WHERE id = ANY($1)`

	rows, err := q.Query(ctx, query, revisionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate revisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rev, err := scanRateRevision(rows)
		if err != nil {
			return nil, err
		}
		result[rev.ID] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate revisions: %w", err)
	}
	return result, nil
}

func (r *rateRepository) UpdateDraftFormData(ctx context.Context, revisionID uuid.UUID, formData models.RateFormData) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	data, err := marshalFormData(formData)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE rate_revisions
		SET form_data = $2, updated_at = now()
		WHERE id = $1 AND submitted_at IS NULL`, revisionID, data)
	if err != nil {
		return fmt.Errorf("failed to update rate draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNoDraftRevision
	}
	return nil
}

func scanRateRevision(row pgx.Row) (*models.RateRevision, error) {
	var (
		rev                        models.RateRevision
		formData                   []byte
		submittedAt, unlockedAt    *time.Time
		submittedBy, unlockedBy    *uuid.UUID
		submitReason, unlockReason *string
	)
	err := row.Scan(
		&rev.ID,
		&rev.RateID,
		&formData,
		&submittedAt, &submittedBy, &submitReason,
		&unlockedAt, &unlockedBy, &unlockReason,
		&rev.CreatedAt,
		&rev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rate revision: %w", err)
	}

	if len(formData) > 0 && string(formData) != "null" {
		if err := json.Unmarshal(formData, &rev.FormData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rate form data: %w", err)
		}
	}
	rev.SubmitInfo = updateInfo(submittedAt, submittedBy, submitReason)
	rev.UnlockInfo = updateInfo(unlockedAt, unlockedBy, unlockReason)
	return &rev, nil
}
