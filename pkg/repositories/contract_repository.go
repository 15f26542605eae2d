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

// ContractRepository provides data access for contracts and their revisions.
type ContractRepository interface {
	// Create inserts a contract, assigning the next submission number of its state.
	Create(ctx context.Context, contract *models.Contract) error
	GetByID(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)

	CreateRevision(ctx context.Context, rev *models.ContractRevision) error
	GetRevision(ctx context.Context, revisionID uuid.UUID) (*models.ContractRevision, error)
	// ListRevisions returns all revisions of a contract, oldest first.
	ListRevisions(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevision, error)
	GetRevisionsByIDs(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.ContractRevision, error)
	UpdateDraftFormData(ctx context.Context, revisionID uuid.UUID, formData models.ContractFormData) error
}

type contractRepository struct{}

// NewContractRepository creates a new ContractRepository.
func NewContractRepository() ContractRepository {
	return &contractRepository{}
}

var _ ContractRepository = (*contractRepository)(nil)

const contractRevisionColumns = `
		id, contract_id, form_data,
		submitted_at, submitted_by, submit_reason,
		unlocked_at, unlocked_by, unlock_reason,
		created_at, updated_at`

func (r *contractRepository) Create(ctx context.Context, contract *models.Contract) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	// The upsert takes a row lock on the state, so numbers are handed out one at a time.
	var stateNumber int
	err = q.QueryRow(ctx, `
		INSERT INTO states (state_code, latest_state_submission_number)
		VALUES ($1, 1)
		ON CONFLICT (state_code) DO UPDATE
		SET latest_state_submission_number = states.latest_state_submission_number + 1,
		    updated_at = now()
		RETURNING latest_state_submission_number`, contract.StateCode).Scan(&stateNumber)
	if err != nil {
		return fmt.Errorf("failed to assign state number: %w", err)
	}

	now := time.Now()
	err = q.QueryRow(ctx, `
		INSERT INTO contracts (state_code, state_number, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at`,
		contract.StateCode, stateNumber, now,
	).Scan(&contract.ID, &contract.CreatedAt, &contract.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}

	contract.StateNumber = stateNumber
	contract.Status = models.StatusDraft
	return nil
}

func (r *contractRepository) GetByID(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var c models.Contract
	err = q.QueryRow(ctx, `
		SELECT id, state_code, state_number, created_at, updated_at
		FROM contracts
		WHERE id = $1`, contractID,
	).Scan(&c.ID, &c.StateCode, &c.StateNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return &c, nil
}

func (r *contractRepository) CreateRevision(ctx context.Context, rev *models.ContractRevision) error {
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
		INSERT INTO contract_revisions (
			contract_id, form_data, unlocked_at, unlocked_by, unlock_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`,
		rev.ContractID, formData, unlockedAt, unlockedBy, unlockReason, now,
	).Scan(&rev.ID, &rev.CreatedAt, &rev.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return apperrors.ErrDraftExists
		}
		return fmt.Errorf("failed to create contract revision: %w", err)
	}
	return nil
}

func (r *contractRepository) GetRevision(ctx context.Context, revisionID uuid.UUID) (*models.ContractRevision, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + contractRevisionColumns + `
		FROM contract_revisions
		WHERE id = $1`

	rev, err := scanContractRevision(q.QueryRow(ctx, query, revisionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return rev, nil
}

func (r *contractRepository) ListRevisions(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevision, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + contractRevisionColumns + `
		FROM contract_revisions
		WHERE contract_id = $1
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract revisions: %w", err)
	}
	defer rows.Close()

	var revisions []*models.ContractRevision
	for rows.Next() {
		rev, err := scanContractRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract revisions: %w", err)
	}
	return revisions, nil
}

func (r *contractRepository) GetRevisionsByIDs(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.ContractRevision, error) {
	result := make(map[uuid.UUID]*models.ContractRevision, len(revisionIDs))
	if len(revisionIDs) == 0 {
		return result, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + contractRevisionColumns + `
		FROM contract_revisions
		WHERE id = ANY($1)`

	rows, err := q.Query(ctx, query, revisionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract revisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rev, err := scanContractRevision(rows)
		if err != nil {
			return nil, err
		}
		result[rev.ID] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract revisions: %w", err)
	}
	return result, nil
}

func (r *contractRepository) UpdateDraftFormData(ctx context.Context, revisionID uuid.UUID, formData models.ContractFormData) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	data, err := marshalFormData(formData)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE contract_revisions
		SET form_data = $2, updated_at = now()
		WHERE id = $1 AND submitted_at IS NULL`, revisionID, data)
	if err != nil {
		return fmt.Errorf("failed to update contract draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNoDraftRevision
	}
	return nil
}

func scanContractRevision(row pgx.Row) (*models.ContractRevision, error) {
	var (
		rev                        models.ContractRevision
		formData                   []byte
		submittedAt, unlockedAt    *time.Time
		submittedBy, unlockedBy    *uuid.UUID
		submitReason, unlockReason *string
	)
	err := row.Scan(
		&rev.ID,
		&rev.ContractID,
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
		return nil, fmt.Errorf("failed to scan contract revision: %w", err)
	}

	if len(formData) > 0 && string(formData) != "null" {
		if err := json.Unmarshal(formData, &rev.FormData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contract form data: %w", err)
		}
	}
	rev.SubmitInfo = updateInfo(submittedAt, submittedBy, submitReason)
	rev.UnlockInfo = updateInfo(unlockedAt, unlockedBy, unlockReason)
	return &rev, nil
}
