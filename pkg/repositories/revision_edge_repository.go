package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/models"
)

// RevisionEdgeRepository stores the validity-interval edges between contract revisions and rate
// revisions. Every method takes the side the caller acts as; revisionID always names a revision
// on that side. Writes take the submission's groupTime explicitly so that every edge touched by
// one submission carries the same instant.
type RevisionEdgeRepository interface {
	// OpenEdges links revisionID to each counterpart revision with validAfter = groupTime.
	// Edges are created in the order given.
	OpenEdges(ctx context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error)

	// CloseOpenEdges ends every open edge of revisionID at groupTime, recording
	// invalidatingRevisionID (a newer revision of the same entity) as the cause.
	CloseOpenEdges(ctx context.Context, side models.Side, revisionID, invalidatingRevisionID uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error)

	// InsertRemovalEdges records that revisionID dropped each counterpart revision.
	InsertRemovalEdges(ctx context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error)

	// ListByRevisions returns every edge, open, closed or removal, that touches one of the
	// given revisions, in creation order.
	ListByRevisions(ctx context.Context, side models.Side, revisionIDs []uuid.UUID) ([]*models.RevisionEdge, error)
}

type revisionEdgeRepository struct{}

// NewRevisionEdgeRepository creates a new RevisionEdgeRepository.
func NewRevisionEdgeRepository() RevisionEdgeRepository {
	return &revisionEdgeRepository{}
}

var _ RevisionEdgeRepository = (*revisionEdgeRepository)(nil)

// edgeSelect projects edges from source (a table or CTE aliased e) joined with both entity IDs.
func edgeSelect(source string) string {
	return fmt.Sprintf(`
		SELECT e.id, e.contract_revision_id, cr.contract_id, e.rate_revision_id, rr.rate_id,
		       e.valid_after, e.valid_until,
		       e.invalidated_by_contract_revision_id, e.invalidated_by_rate_revision_id,
		       e.is_removal, e.created_at
		FROM %s e
		JOIN contract_revisions cr ON cr.id = e.contract_revision_id
		JOIN rate_revisions rr ON rr.id = e.rate_revision_id`, source)
}

func (r *revisionEdgeRepository) OpenEdges(ctx context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	if len(counterpartRevisionIDs) == 0 {
		return nil, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	self, counterpart := tablesFor(side), tablesFor(side.Counterpart())
	query := fmt.Sprintf(`
		WITH inserted AS (
			INSERT INTO rate_revisions_on_contract_revisions (%s, %s, valid_after, created_at)
			SELECT $1, link.id, $3, $3
			FROM unnest($2::uuid[]) WITH ORDINALITY AS link(id, ord)
			ORDER BY link.ord
			RETURNING *
		)`, self.edgeRevisionFK, counterpart.edgeRevisionFK) + edgeSelect("inserted") + `
		ORDER BY e.id`

	rows, err := q.Query(ctx, query, revisionID, counterpartRevisionIDs, groupTime)
	if err != nil {
		return nil, fmt.Errorf("failed to open edges: %w", err)
	}
	return collectEdges(rows)
}

func (r *revisionEdgeRepository) CloseOpenEdges(ctx context.Context, side models.Side, revisionID, invalidatingRevisionID uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	self := tablesFor(side)
	query := fmt.Sprintf(`
		WITH closed AS (
			UPDATE rate_revisions_on_contract_revisions
			SET valid_until = $3, %s = $2
			WHERE %s = $1 AND valid_until IS NULL
			RETURNING *
		)`, self.edgeInvalidatedBy, self.edgeRevisionFK) + edgeSelect("closed") + `
		ORDER BY e.id`

	rows, err := q.Query(ctx, query, revisionID, invalidatingRevisionID, groupTime)
	if err != nil {
		return nil, fmt.Errorf("failed to close edges: %w", err)
	}
	return collectEdges(rows)
}

func (r *revisionEdgeRepository) InsertRemovalEdges(ctx context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	if len(counterpartRevisionIDs) == 0 {
		return nil, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	self, counterpart := tablesFor(side), tablesFor(side.Counterpart())
	query := fmt.Sprintf(`
		WITH inserted AS (
			INSERT INTO rate_revisions_on_contract_revisions
				(%s, %s, valid_after, valid_until, %s, is_removal, created_at)
			SELECT $1, link.id, $3, $3, $1, true, $3
			FROM unnest($2::uuid[]) WITH ORDINALITY AS link(id, ord)
			ORDER BY link.ord
			RETURNING *
		)`, self.edgeRevisionFK, counterpart.edgeRevisionFK, self.edgeInvalidatedBy) + edgeSelect("inserted") + `
		ORDER BY e.id`

	rows, err := q.Query(ctx, query, revisionID, counterpartRevisionIDs, groupTime)
	if err != nil {
		return nil, fmt.Errorf("failed to record removal edges: %w", err)
	}
	return collectEdges(rows)
}

func (r *revisionEdgeRepository) ListByRevisions(ctx context.Context, side models.Side, revisionIDs []uuid.UUID) ([]*models.RevisionEdge, error) {
	if len(revisionIDs) == 0 {
		return nil, nil
	}
	q, err := database.QuerierFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := edgeSelect("rate_revisions_on_contract_revisions") +
		fmt.Sprintf(`
		WHERE e.%s = ANY($1)
		ORDER BY e.id`, tablesFor(side).edgeRevisionFK)

	rows, err := q.Query(ctx, query, revisionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	return collectEdges(rows)
}

func collectEdges(rows pgx.Rows) ([]*models.RevisionEdge, error) {
	defer rows.Close()

	var edges []*models.RevisionEdge
	for rows.Next() {
		edge, err := scanRevisionEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}

func scanRevisionEdge(row pgx.Row) (*models.RevisionEdge, error) {
	var e models.RevisionEdge
	err := row.Scan(
		&e.ID,
		&e.ContractRevisionID,
		&e.ContractID,
		&e.RateRevisionID,
		&e.RateID,
		&e.ValidAfter,
		&e.ValidUntil,
		&e.InvalidatedByContractRevisionID,
		&e.InvalidatedByRateRevisionID,
		&e.IsRemoval,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan edge: %w", err)
	}
	return &e, nil
}
