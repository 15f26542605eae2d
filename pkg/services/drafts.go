package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// dedupeIDs drops repeated IDs, keeping first occurrences in order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// resolveStagedLinks de-duplicates the requested counterpart IDs and checks they all exist and
// belong to stateCode.
func resolveStagedLinks(ctx context.Context, counterpart repositories.RevisionRepository, stateCode string, ids []uuid.UUID) ([]uuid.UUID, error) {
	ids = dedupeIDs(ids)
	missing, err := counterpart.MissingEntityIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, counterpart.Side(), missing[0])
	}

	mismatched, err := counterpart.MismatchedStateIDs(ctx, stateCode, ids)
	if err != nil {
		return nil, err
	}
	if len(mismatched) > 0 {
		return nil, fmt.Errorf("%w: %s %s belongs to another state", apperrors.ErrForbidden, counterpart.Side(), mismatched[0])
	}
	return ids, nil
}

// activeCounterpartEntities returns the counterpart entities linked to revisionID by open edges,
// in edge order.
func activeCounterpartEntities(side models.Side, revisionID uuid.UUID, edges []*models.RevisionEdge) []uuid.UUID {
	var ids []uuid.UUID
	for _, e := range activeEdges(side, revisionID, edges) {
		ids = append(ids, e.EntityID(side.Counterpart()))
	}
	return dedupeIDs(ids)
}

// activeEdges filters edges down to the open, non-removal edges of revisionID.
func activeEdges(side models.Side, revisionID uuid.UUID, edges []*models.RevisionEdge) []*models.RevisionEdge {
	var active []*models.RevisionEdge
	for _, e := range edges {
		if e.RevisionID(side) == revisionID && e.IsOpen() && !e.IsRemoval {
			active = append(active, e)
		}
	}
	return active
}

func statusOf[R any](revisions []R, submitInfo func(R) *models.UpdateInfo) models.SubmissionStatus {
	infos := make([]*models.UpdateInfo, 0, len(revisions))
	for _, rev := range revisions {
		infos = append(infos, submitInfo(rev))
	}
	return models.DeriveStatus(infos)
}
