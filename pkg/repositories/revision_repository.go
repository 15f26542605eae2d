package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/models"
)

// RevisionRepository holds the revision lifecycle queries that are identical for contracts and
// rates. One instance serves one side.
type RevisionRepository interface {
	Side() models.Side

	// LockEntity takes a row lock on the contract or rate.
	LockEntity(ctx context.Context, entityID uuid.UUID) error
	// LockEntities locks the given rows in id order, FOR SHARE when shared is set and FOR UPDATE
	// otherwise. Returns ErrNotFound if any entity is missing.
	LockEntities(ctx context.Context, ids []uuid.UUID, shared bool) error
	// MissingEntityIDs returns the IDs in ids that do not exist on this side.
	MissingEntityIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	// MismatchedStateIDs returns the IDs in ids whose entity belongs to a state other than
	// stateCode, in request order. Unknown IDs are ignored.
	MismatchedStateIDs(ctx context.Context, stateCode string, ids []uuid.UUID) ([]uuid.UUID, error)

	// GetDraftRevisionID returns the entity's draft revision.
	// Returns ErrNotFound for an unknown entity and ErrNoDraftRevision when there is no draft.
	GetDraftRevisionID(ctx context.Context, entityID uuid.UUID) (uuid.UUID, error)
	// LockDraftRevision locks the revision row and returns it if it is still a draft.
	LockDraftRevision(ctx context.Context, revisionID uuid.UUID) (*models.RevisionHeader, error)
	StampSubmitInfo(ctx context.Context, revisionID uuid.UUID, info models.UpdateInfo) error
	// GetPreviousSubmittedRevisionID returns the newest submitted revision of the entity other
	// than excludeID, or nil.
	GetPreviousSubmittedRevisionID(ctx context.Context, entityID, excludeID uuid.UUID) (*uuid.UUID, error)
	// GetLatestSubmittedRevisionIDs maps each entity that has a submission to its newest
	// submitted revision.
	GetLatestSubmittedRevisionIDs(ctx context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)

	// GetDraftLinks returns the staged counterpart entity IDs of a draft in position order.
	GetDraftLinks(ctx context.Context, revisionID uuid.UUID) ([]uuid.UUID, error)
	// ReplaceDraftLinks replaces the staged counterpart set. An empty slice clears it.
	ReplaceDraftLinks(ctx context.Context, revisionID uuid.UUID, counterpartIDs []uuid.UUID) error
}

type revisionRepository struct {
	side   models.Side
	tables sideTables
}

// NewRevisionRepository creates a RevisionRepository for the given side.
func NewRevisionRepository(side models.Side) RevisionRepository {
	return &revisionRepository{side: side, tables: tablesFor(side)}
}

var _ RevisionRepository = (*revisionRepository)(nil)

func (r *revisionRepository) Side() models.Side {
	return r.side
}

func (r *revisionRepository) LockEntity(ctx context.Context, entityID uuid.UUID) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, r.tables.entities)

	var id uuid.UUID
	if err := q.QueryRow(ctx, query, entityID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to lock %s: %w", r.side, err)
	}
	return nil
}

func (r *revisionRepository) LockEntities(ctx context.Context, ids []uuid.UUID, shared bool) error {
	if len(ids) == 0 {
		return nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	mode := "FOR UPDATE"
	if shared {
		mode = "FOR SHARE"
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1) ORDER BY id %s`, r.tables.entities, mode)

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to lock %s rows: %w", r.side, err)
	}
	locked, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("failed to lock %s rows: %w", r.side, err)
	}

	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	if len(locked) < len(wanted) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, r.side)
	}
	return nil
}

func (r *revisionRepository) MissingEntityIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT requested.id
		FROM unnest($1::uuid[]) AS requested(id)
		LEFT JOIN %s e ON e.id = requested.id
		WHERE e.id IS NULL`, r.tables.entities)

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s ids: %w", r.side, err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to check %s ids: %w", r.side, err)
	}
	return missing, nil
}

func (r *revisionRepository) MismatchedStateIDs(ctx context.Context, stateCode string, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT e.id
		FROM unnest($1::uuid[]) WITH ORDINALITY AS requested(id, ord)
		JOIN %s e ON e.id = requested.id
		WHERE e.state_code <> $2
		ORDER BY requested.ord`, r.tables.entities)

	rows, err := q.Query(ctx, query, ids, stateCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s states: %w", r.side, err)
	}
	mismatched, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to check %s states: %w", r.side, err)
	}
	return mismatched, nil
}

func (r *revisionRepository) GetDraftRevisionID(ctx context.Context, entityID uuid.UUID) (uuid.UUID, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	query := fmt.Sprintf(`
		SELECT rev.id
		FROM %s e
		LEFT JOIN %s rev ON rev.%s = e.id AND rev.submitted_at IS NULL
		WHERE e.id = $1`, r.tables.entities, r.tables.revisions, r.tables.entityFK)

	var draftID *uuid.UUID
	if err := q.QueryRow(ctx, query, entityID).Scan(&draftID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to find draft %s revision: %w", r.side, err)
	}
	if draftID == nil {
		return uuid.Nil, apperrors.ErrNoDraftRevision
	}
	return *draftID, nil
}

func (r *revisionRepository) LockDraftRevision(ctx context.Context, revisionID uuid.UUID) (*models.RevisionHeader, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, %s, submitted_at, submitted_by, submit_reason,
		       unlocked_at, unlocked_by, unlock_reason, created_at
		FROM %s
		WHERE id = $1
		FOR UPDATE`, r.tables.entityFK, r.tables.revisions)

	var (
		h                          models.RevisionHeader
		submittedAt, unlockedAt    *time.Time
		submittedBy, unlockedBy    *uuid.UUID
		submitReason, unlockReason *string
	)
	err = q.QueryRow(ctx, query, revisionID).Scan(
		&h.ID, &h.EntityID,
		&submittedAt, &submittedBy, &submitReason,
		&unlockedAt, &unlockedBy, &unlockReason,
		&h.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s revision %s does not exist", apperrors.ErrNoDraftRevision, r.side, revisionID)
		}
		return nil, fmt.Errorf("failed to lock %s revision: %w", r.side, err)
	}

	h.SubmitInfo = updateInfo(submittedAt, submittedBy, submitReason)
	h.UnlockInfo = updateInfo(unlockedAt, unlockedBy, unlockReason)
	if !h.IsDraft() {
		return nil, fmt.Errorf("%w: %s revision %s is already submitted", apperrors.ErrNoDraftRevision, r.side, revisionID)
	}
	return &h, nil
}

func (r *revisionRepository) StampSubmitInfo(ctx context.Context, revisionID uuid.UUID, info models.UpdateInfo) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET submitted_at = $2, submitted_by = $3, submit_reason = $4, updated_at = $2
		WHERE id = $1 AND submitted_at IS NULL`, r.tables.revisions)

	tag, err := q.Exec(ctx, query, revisionID, info.UpdatedAt, info.UpdatedBy, info.UpdatedReason)
	if err != nil {
		return fmt.Errorf("failed to stamp %s submit info: %w", r.side, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNoDraftRevision
	}
	return nil
}

func (r *revisionRepository) GetPreviousSubmittedRevisionID(ctx context.Context, entityID, excludeID uuid.UUID) (*uuid.UUID, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id
		FROM %s
		WHERE %s = $1 AND id <> $2 AND submitted_at IS NOT NULL
		ORDER BY submitted_at DESC, created_at DESC
		LIMIT 1`, r.tables.revisions, r.tables.entityFK)

	var id uuid.UUID
	if err := q.QueryRow(ctx, query, entityID, excludeID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find previous %s revision: %w", r.side, err)
	}
	return &id, nil
}

func (r *revisionRepository) GetLatestSubmittedRevisionIDs(ctx context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	latest := make(map[uuid.UUID]uuid.UUID, len(entityIDs))
	if len(entityIDs) == 0 {
		return latest, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (%[2]s) %[2]s, id
		FROM %[1]s
		WHERE %[2]s = ANY($1) AND submitted_at IS NOT NULL
		ORDER BY %[2]s, submitted_at DESC, created_at DESC`, r.tables.revisions, r.tables.entityFK)

	rows, err := q.Query(ctx, query, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest %s revisions: %w", r.side, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityID, revisionID uuid.UUID
		if err := rows.Scan(&entityID, &revisionID); err != nil {
			return nil, fmt.Errorf("failed to scan latest %s revision: %w", r.side, err)
		}
		latest[entityID] = revisionID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest %s revisions: %w", r.side, err)
	}
	return latest, nil
}

func (r *revisionRepository) GetDraftLinks(ctx context.Context, revisionID uuid.UUID) ([]uuid.UUID, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1
		ORDER BY position`, r.tables.draftLinkCounterpartFK, r.tables.draftLinks, r.tables.draftLinkRevisionFK)

	rows, err := q.Query(ctx, query, revisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged links: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan staged links: %w", err)
	}
	return ids, nil
}

func (r *revisionRepository) ReplaceDraftLinks(ctx context.Context, revisionID uuid.UUID, counterpartIDs []uuid.UUID) error {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return err
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, r.tables.draftLinks, r.tables.draftLinkRevisionFK)
	if _, err := q.Exec(ctx, deleteQuery, revisionID); err != nil {
		return fmt.Errorf("failed to clear staged links: %w", err)
	}
	if len(counterpartIDs) == 0 {
		return nil
	}

	// WITH ORDINALITY keeps the caller's order in position.
	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, position)
		SELECT $1, link.id, link.ord
		FROM unnest($2::uuid[]) WITH ORDINALITY AS link(id, ord)`,
		r.tables.draftLinks, r.tables.draftLinkRevisionFK, r.tables.draftLinkCounterpartFK)

	if _, err := q.Exec(ctx, insertQuery, revisionID, counterpartIDs); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return fmt.Errorf("%w: staged %s does not exist", apperrors.ErrNotFound, r.side.Counterpart())
		}
		return fmt.Errorf("failed to insert staged links: %w", err)
	}
	return nil
}
