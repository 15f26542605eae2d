package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/metrics"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// revision is implemented by *models.ContractRevision and *models.RateRevision.
type revision interface {
	Header() *models.RevisionHeader
}

// entityStore is the shape ContractRepository and RateRepository share. E is the entity, R its
// revision and F its form data.
type entityStore[E any, R revision, F any] interface {
	Create(ctx context.Context, entity E) error
	GetByID(ctx context.Context, id uuid.UUID) (E, error)
	CreateRevision(ctx context.Context, rev R) error
	GetRevision(ctx context.Context, revisionID uuid.UUID) (R, error)
	ListRevisions(ctx context.Context, id uuid.UUID) ([]R, error)
	GetRevisionsByIDs(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]R, error)
	UpdateDraftFormData(ctx context.Context, revisionID uuid.UUID, formData F) error
}

// sideModel adapts one side's model types to the shared lifecycle. S is the counterpart summary
// attached to submitted revisions.
type sideModel[E any, R revision, F, S any] struct {
	newEntity       func(stateCode string) E
	entityID        func(E) uuid.UUID
	stateCode       func(E) string
	setRevisions    func(E, []R, models.SubmissionStatus)
	newRevision     func(entityID uuid.UUID, formData F, unlockInfo *models.UpdateInfo) R
	formData        func(R) F
	setDraftLinks   func(R, []uuid.UUID)
	setCounterparts func(R, []S)
}

// counterpartView is a counterpart revision reduced to what links and histories show.
type counterpartView[C any] struct {
	Summary    C
	SubmitInfo *models.UpdateInfo
}

// counterpartLoader fetches counterpart revisions by ID. Unknown IDs are left out of the map.
type counterpartLoader[C any] func(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]counterpartView[C], error)

func counterpartsFrom[E any, R revision, F, C any](store entityStore[E, R, F], summarize func(R) C) counterpartLoader[C] {
	return func(ctx context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]counterpartView[C], error) {
		revisions, err := store.GetRevisionsByIDs(ctx, revisionIDs)
		if err != nil {
			return nil, err
		}
		views := make(map[uuid.UUID]counterpartView[C], len(revisions))
		for id, rev := range revisions {
			views[id] = counterpartView[C]{Summary: summarize(rev), SubmitInfo: rev.Header().SubmitInfo}
		}
		return views, nil
	}
}

func submitInfoOf[R revision](rev R) *models.UpdateInfo {
	return rev.Header().SubmitInfo
}

// lifecycle implements create, read, draft edits, submission and unlock for one side. The
// contract and rate services are thin typed wrappers around it.
type lifecycle[E any, R revision, F, S any] struct {
	side            models.Side
	tx              database.Transactor
	store           entityStore[E, R, F]
	selfRevs        repositories.RevisionRepository
	counterpartRevs repositories.RevisionRepository
	edges           repositories.RevisionEdgeRepository
	counterparts    counterpartLoader[S]
	model           sideModel[E, R, F, S]
	writer          *revisionWriter
	cache           HistoryCache
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

func newLifecycle[E any, R revision, F, S any](
	side models.Side,
	tx database.Transactor,
	store entityStore[E, R, F],
	selfRevs, counterpartRevs repositories.RevisionRepository,
	edges repositories.RevisionEdgeRepository,
	counterparts counterpartLoader[S],
	model sideModel[E, R, F, S],
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *lifecycle[E, R, F, S] {
	if cache == nil {
		cache = noopHistoryCache{}
	}
	return &lifecycle[E, R, F, S]{
		side:            side,
		tx:              tx,
		store:           store,
		selfRevs:        selfRevs,
		counterpartRevs: counterpartRevs,
		edges:           edges,
		counterparts:    counterparts,
		model:           model,
		writer:          newRevisionWriter(tx, edges, logger),
		cache:           cache,
		metrics:         m,
		logger:          logger,
	}
}

func (l *lifecycle[E, R, F, S]) idField(id uuid.UUID) zap.Field {
	return zap.String(l.side.String()+"_id", id.String())
}

func (l *lifecycle[E, R, F, S]) create(ctx context.Context, stateCode string, formData F, counterpartIDs []uuid.UUID) (E, error) {
	var zero E
	stateCode = strings.ToUpper(strings.TrimSpace(stateCode))
	if stateCode == "" {
		return zero, fmt.Errorf("%w: state code is required", apperrors.ErrInvalidInput)
	}

	entity := l.model.newEntity(stateCode)
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		links, err := resolveStagedLinks(ctx, l.counterpartRevs, stateCode, counterpartIDs)
		if err != nil {
			return err
		}
		if err := l.store.Create(ctx, entity); err != nil {
			return err
		}

		draft := l.model.newRevision(l.model.entityID(entity), formData, nil)
		if err := l.store.CreateRevision(ctx, draft); err != nil {
			return err
		}
		if err := l.selfRevs.ReplaceDraftLinks(ctx, draft.Header().ID, links); err != nil {
			return err
		}
		l.model.setDraftLinks(draft, links)
		l.model.setRevisions(entity, []R{draft}, models.StatusDraft)
		return nil
	})
	if err != nil {
		return zero, err
	}

	l.logger.Info("Created "+l.side.String(),
		l.idField(l.model.entityID(entity)),
		zap.String("state_code", stateCode))
	return entity, nil
}

func (l *lifecycle[E, R, F, S]) get(ctx context.Context, id uuid.UUID) (E, error) {
	var entity E
	err := l.tx.WithinReadOnlyTx(ctx, func(ctx context.Context) error {
		var err error
		entity, err = l.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		revisions, err := l.store.ListRevisions(ctx, id)
		if err != nil {
			return err
		}
		if err := l.attachLinks(ctx, revisions...); err != nil {
			return err
		}
		l.model.setRevisions(entity, revisions, statusOf(revisions, submitInfoOf[R]))
		return nil
	})
	if err != nil {
		var zero E
		return zero, err
	}
	return entity, nil
}

// attachLinks fills staged counterpart IDs on drafts and active counterpart revisions on
// submitted revisions.
func (l *lifecycle[E, R, F, S]) attachLinks(ctx context.Context, revisions ...R) error {
	var submitted []uuid.UUID
	for _, rev := range revisions {
		h := rev.Header()
		if h.IsDraft() {
			links, err := l.selfRevs.GetDraftLinks(ctx, h.ID)
			if err != nil {
				return err
			}
			l.model.setDraftLinks(rev, links)
			continue
		}
		submitted = append(submitted, h.ID)
	}
	if len(submitted) == 0 {
		return nil
	}

	other := l.side.Counterpart()
	edges, err := l.edges.ListByRevisions(ctx, l.side, submitted)
	if err != nil {
		return err
	}
	var counterpartIDs []uuid.UUID
	for _, e := range edges {
		if e.IsOpen() && !e.IsRemoval {
			counterpartIDs = append(counterpartIDs, e.RevisionID(other))
		}
	}
	counterparts, err := l.counterparts(ctx, counterpartIDs)
	if err != nil {
		return err
	}

	for _, rev := range revisions {
		h := rev.Header()
		if h.IsDraft() {
			continue
		}
		var linked []S
		for _, e := range activeEdges(l.side, h.ID, edges) {
			cp, ok := counterparts[e.RevisionID(other)]
			if !ok {
				return fmt.Errorf("%w: edge %d references missing %s revision %s",
					apperrors.ErrDataIntegrity, e.ID, other, e.RevisionID(other))
			}
			linked = append(linked, cp.Summary)
		}
		l.model.setCounterparts(rev, linked)
	}
	return nil
}

func (l *lifecycle[E, R, F, S]) updateDraft(ctx context.Context, id uuid.UUID, formData F, counterpartIDs []uuid.UUID) (R, error) {
	var draft R
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		entity, err := l.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		draftID, err := l.selfRevs.GetDraftRevisionID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := l.selfRevs.LockDraftRevision(ctx, draftID); err != nil {
			return err
		}

		links, err := resolveStagedLinks(ctx, l.counterpartRevs, l.model.stateCode(entity), counterpartIDs)
		if err != nil {
			return err
		}
		if err := l.store.UpdateDraftFormData(ctx, draftID, formData); err != nil {
			return err
		}
		if err := l.selfRevs.ReplaceDraftLinks(ctx, draftID, links); err != nil {
			return err
		}

		draft, err = l.store.GetRevision(ctx, draftID)
		if err != nil {
			return err
		}
		l.model.setDraftLinks(draft, links)
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}

	l.logger.Debug("Updated "+l.side.String()+" draft",
		l.idField(id),
		zap.String("revision_id", draft.Header().ID.String()))
	return draft, nil
}

// submit submits a draft revision and returns it with its new links, read in the submitting
// transaction.
func (l *lifecycle[E, R, F, S]) submit(ctx context.Context, revisionID, submittedBy uuid.UUID, reason string) (R, error) {
	var submitted R
	load := func(ctx context.Context) error {
		var err error
		if submitted, err = l.store.GetRevision(ctx, revisionID); err != nil {
			return err
		}
		return l.attachLinks(ctx, submitted)
	}

	result, err := l.writer.submit(ctx, l.selfRevs, l.counterpartRevs, revisionID, submittedBy, reason, load)
	if err != nil {
		l.metrics.ObserveSubmission(l.side.String(), err, 0, 0, 0)
		var zero R
		return zero, err
	}
	l.metrics.ObserveSubmission(l.side.String(), nil, len(result.Opened), len(result.Closed), len(result.Removed))

	l.cache.Invalidate(ctx, l.side, result.EntityID)
	l.cache.Invalidate(ctx, l.side.Counterpart(), result.touchedCounterparts()...)
	return submitted, nil
}

// submitDraftOf locates the entity's draft and submits it.
func (l *lifecycle[E, R, F, S]) submitDraftOf(ctx context.Context, id, submittedBy uuid.UUID, reason string) (R, error) {
	var draftID uuid.UUID
	err := l.tx.WithinReadOnlyTx(ctx, func(ctx context.Context) error {
		var err error
		draftID, err = l.selfRevs.GetDraftRevisionID(ctx, id)
		return err
	})
	if err != nil {
		l.metrics.ObserveSubmission(l.side.String(), err, 0, 0, 0)
		var zero R
		return zero, err
	}
	return l.submit(ctx, draftID, submittedBy, reason)
}

// unlock opens a new draft from the latest submitted revision, carrying over its form data and
// active counterpart links.
func (l *lifecycle[E, R, F, S]) unlock(ctx context.Context, id, unlockedBy uuid.UUID, reason string) (R, error) {
	var draft R
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.selfRevs.LockEntity(ctx, id); err != nil {
			return err
		}

		revisions, err := l.store.ListRevisions(ctx, id)
		if err != nil {
			return err
		}
		var (
			latest   R
			latestID uuid.UUID
			hasDraft bool
		)
		for _, rev := range revisions {
			h := rev.Header()
			if h.IsDraft() {
				hasDraft = true
				continue
			}
			latest, latestID = rev, h.ID
		}
		if latestID == uuid.Nil {
			return apperrors.ErrNotSubmitted
		}
		if hasDraft {
			return apperrors.ErrDraftExists
		}

		edges, err := l.edges.ListByRevisions(ctx, l.side, []uuid.UUID{latestID})
		if err != nil {
			return err
		}
		links := activeCounterpartEntities(l.side, latestID, edges)

		draft = l.model.newRevision(id, l.model.formData(latest), &models.UpdateInfo{
			UpdatedAt:     l.writer.clock().UTC().Truncate(time.Microsecond),
			UpdatedBy:     unlockedBy,
			UpdatedReason: reason,
		})
		if err := l.store.CreateRevision(ctx, draft); err != nil {
			return err
		}
		if err := l.selfRevs.ReplaceDraftLinks(ctx, draft.Header().ID, links); err != nil {
			return err
		}
		l.model.setDraftLinks(draft, links)
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}

	l.logger.Info("Unlocked "+l.side.String(),
		l.idField(id),
		zap.String("revision_id", draft.Header().ID.String()),
		zap.String("unlocked_by", unlockedBy.String()))
	return draft, nil
}
