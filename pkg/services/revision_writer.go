package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// submitResult describes what one submission wrote.
type submitResult struct {
	Side       models.Side
	RevisionID uuid.UUID
	EntityID   uuid.UUID
	SubmitInfo models.UpdateInfo
	Opened     []*models.RevisionEdge
	Closed     []*models.RevisionEdge
	Removed    []*models.RevisionEdge
}

// touchedCounterparts returns the counterpart entities whose histories the submission changed.
func (r *submitResult) touchedCounterparts() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, group := range [][]*models.RevisionEdge{r.Opened, r.Closed, r.Removed} {
		for _, e := range group {
			id := e.EntityID(r.Side.Counterpart())
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// revisionWriter submits draft revisions. The same routine serves contracts and rates; the
// repositories passed to submit decide which side is "self".
type revisionWriter struct {
	tx     database.Transactor
	edges  repositories.RevisionEdgeRepository
	clock  func() time.Time
	logger *zap.Logger
}

func newRevisionWriter(tx database.Transactor, edges repositories.RevisionEdgeRepository, logger *zap.Logger) *revisionWriter {
	return &revisionWriter{
		tx:     tx,
		edges:  edges,
		clock:  time.Now,
		logger: logger,
	}
}

// unsubmittedCounterpartError is returned when a staged link points at an entity with no
// submitted revision.
func unsubmittedCounterpartError(side models.Side) error {
	if side == models.SideRate {
		return apperrors.ErrRateWithUnsubmittedContract
	}
	return apperrors.ErrContractWithUnsubmittedRate
}

// lockParticipants locks the submitting entity FOR UPDATE and its staged counterparts FOR
// SHARE. Contract rows are always locked before rate rows.
func lockParticipants(ctx context.Context, self, counterpart repositories.RevisionRepository, entityID uuid.UUID, links []uuid.UUID) error {
	lockSelf := func() error { return self.LockEntities(ctx, []uuid.UUID{entityID}, false) }
	lockLinks := func() error { return counterpart.LockEntities(ctx, links, true) }

	first, second := lockSelf, lockLinks
	if self.Side() == models.SideRate {
		first, second = lockLinks, lockSelf
	}
	if err := first(); err != nil {
		return err
	}
	return second()
}

// submit turns the draft revisionID into a submitted revision. Every write carries one
// groupTime, taken once per call. load runs last inside the same transaction, so it reads
// exactly what this call wrote.
func (w *revisionWriter) submit(
	ctx context.Context,
	self, counterpart repositories.RevisionRepository,
	revisionID, submittedBy uuid.UUID,
	reason string,
	load func(ctx context.Context) error,
) (*submitResult, error) {
	side := self.Side()
	result := &submitResult{Side: side, RevisionID: revisionID}

	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		draft, err := self.LockDraftRevision(ctx, revisionID)
		if err != nil {
			return err
		}
		result.EntityID = draft.EntityID

		links, err := self.GetDraftLinks(ctx, revisionID)
		if err != nil {
			return err
		}
		if err := lockParticipants(ctx, self, counterpart, draft.EntityID, links); err != nil {
			return err
		}

		// Taken after the locks so it is later than any submission we waited on.
		groupTime := w.clock().UTC().Truncate(time.Microsecond)
		result.SubmitInfo = models.UpdateInfo{
			UpdatedAt:     groupTime,
			UpdatedBy:     submittedBy,
			UpdatedReason: reason,
		}

		latest, err := counterpart.GetLatestSubmittedRevisionIDs(ctx, links)
		if err != nil {
			return err
		}
		counterpartRevisionIDs := make([]uuid.UUID, 0, len(links))
		linked := make(map[uuid.UUID]struct{}, len(links))
		for _, entityID := range links {
			revID, ok := latest[entityID]
			if !ok {
				return unsubmittedCounterpartError(side)
			}
			counterpartRevisionIDs = append(counterpartRevisionIDs, revID)
			linked[entityID] = struct{}{}
		}

		if err := self.StampSubmitInfo(ctx, revisionID, result.SubmitInfo); err != nil {
			return err
		}

		if result.Opened, err = w.edges.OpenEdges(ctx, side, revisionID, counterpartRevisionIDs, groupTime); err != nil {
			return err
		}

		previousID, err := self.GetPreviousSubmittedRevisionID(ctx, draft.EntityID, revisionID)
		if err != nil {
			return err
		}
		if previousID != nil {
			if result.Closed, err = w.edges.CloseOpenEdges(ctx, side, *previousID, revisionID, groupTime); err != nil {
				return err
			}

			var dropped []uuid.UUID
			for _, e := range result.Closed {
				if _, still := linked[e.EntityID(side.Counterpart())]; !still {
					dropped = append(dropped, e.RevisionID(side.Counterpart()))
				}
			}
			if result.Removed, err = w.edges.InsertRemovalEdges(ctx, side, revisionID, dropped, groupTime); err != nil {
				return err
			}
		}

		// Staged links only live on drafts.
		if err := self.ReplaceDraftLinks(ctx, revisionID, nil); err != nil {
			return err
		}
		if load == nil {
			return nil
		}
		return load(ctx)
	})
	if err != nil {
		if apperrors.IsPrecondition(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to submit %s revision %s: %w", side, revisionID, err)
	}

	w.logger.Info("Submitted revision",
		zap.String("side", side.String()),
		zap.String("revision_id", revisionID.String()),
		zap.String("entity_id", result.EntityID.String()),
		zap.Time("group_time", result.SubmitInfo.UpdatedAt),
		zap.Int("opened", len(result.Opened)),
		zap.Int("closed", len(result.Closed)),
		zap.Int("removed", len(result.Removed)),
	)
	return result, nil
}
