package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/history"
	"github.com/mc-review/submission-engine/pkg/metrics"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// HistoryService returns the linear, attributed history of a contract or rate.
type HistoryService interface {
	// FindContractRevisions returns one snapshot per change to the contract or to its set of
	// linked rate revisions, oldest first. Draft revisions never appear.
	FindContractRevisions(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevisionSnapshot, error)
	// FindRate is the mirror of FindContractRevisions for a rate.
	FindRate(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevisionSnapshot, error)
}

type historyService struct {
	tx        database.Transactor
	contracts historySource[models.ContractFormData, *models.RateRevisionSummary]
	rates     historySource[models.RateFormData, *models.ContractRevisionSummary]
	edges     repositories.RevisionEdgeRepository
	cache     HistoryCache
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHistoryService creates a HistoryService. cache and m may be nil.
func NewHistoryService(
	tx database.Transactor,
	contracts repositories.ContractRepository,
	rates repositories.RateRepository,
	edges repositories.RevisionEdgeRepository,
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) HistoryService {
	if cache == nil {
		cache = noopHistoryCache{}
	}
	contractStore := entityStore[*models.Contract, *models.ContractRevision, models.ContractFormData](contracts)
	rateStore := entityStore[*models.Rate, *models.RateRevision, models.RateFormData](rates)
	return &historyService{
		tx: tx,
		contracts: historySource[models.ContractFormData, *models.RateRevisionSummary]{
			side:         models.SideContract,
			revisions:    revisionsFrom(contractStore, contractModel.formData),
			counterparts: counterpartsFrom(rateStore, (*models.RateRevision).Summary),
		},
		rates: historySource[models.RateFormData, *models.ContractRevisionSummary]{
			side:         models.SideRate,
			revisions:    revisionsFrom(rateStore, rateModel.formData),
			counterparts: counterpartsFrom(contractStore, (*models.ContractRevision).Summary),
		},
		edges:   edges,
		cache:   cache,
		metrics: m,
		logger:  logger.Named("history"),
	}
}

var _ HistoryService = (*historyService)(nil)

func (s *historyService) FindContractRevisions(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevisionSnapshot, error) {
	return findHistory(ctx, s, s.contracts, contractID, s.cache.GetContractHistory, s.cache.SetContractHistory,
		func(snap history.Snapshot[models.ContractFormData, *models.RateRevisionSummary]) *models.ContractRevisionSnapshot {
			return &models.ContractRevisionSnapshot{
				ID:               snap.RevisionID,
				ContractID:       contractID,
				ContractFormData: snap.FormData,
				SubmitInfo:       snap.SubmitInfo,
				RateRevisions:    snap.Counterparts,
			}
		})
}

func (s *historyService) FindRate(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevisionSnapshot, error) {
	return findHistory(ctx, s, s.rates, rateID, s.cache.GetRateHistory, s.cache.SetRateHistory,
		func(snap history.Snapshot[models.RateFormData, *models.ContractRevisionSummary]) *models.RateRevisionSnapshot {
			return &models.RateRevisionSnapshot{
				ID:                snap.RevisionID,
				RateID:            rateID,
				RevisionFormData:  snap.FormData,
				SubmitInfo:        snap.SubmitInfo,
				ContractRevisions: snap.Counterparts,
			}
		})
}

// findHistory serves a history from the cache, or reconstructs it in a read-only tx and caches
// the result.
func findHistory[F, C, S any](
	ctx context.Context,
	s *historyService,
	src historySource[F, C],
	id uuid.UUID,
	cached func(context.Context, uuid.UUID) ([]S, bool),
	store func(context.Context, uuid.UUID, []S),
	snapshot func(history.Snapshot[F, C]) S,
) ([]S, error) {
	side := src.side.String()
	if h, ok := cached(ctx, id); ok {
		s.metrics.ObserveCache(side, true)
		return h, nil
	}
	s.metrics.ObserveCache(side, false)

	start := time.Now()
	var result []S
	err := s.tx.WithinReadOnlyTx(ctx, func(ctx context.Context) error {
		snapshots, err := src.load(ctx, s.edges, id)
		if err != nil {
			return err
		}
		result = make([]S, 0, len(snapshots))
		for _, snap := range snapshots {
			result = append(result, snapshot(snap))
		}
		return nil
	})
	if err != nil {
		s.observeFailure(src.side, id, err)
		return nil, err
	}

	s.metrics.ObserveHistory(side, len(result), time.Since(start))
	store(ctx, id, result)
	return result, nil
}

func (s *historyService) observeFailure(side models.Side, id uuid.UUID, err error) {
	if errors.Is(err, apperrors.ErrDataIntegrity) {
		s.metrics.ObserveIntegrityFailure(side.String())
		s.logger.Error("Stored history violates an edge invariant",
			zap.String("side", side.String()),
			zap.String("entity_id", id.String()),
			zap.Error(err))
	}
}

// historySource reads one side's revisions and the counterpart revisions its edges reference.
type historySource[F, C any] struct {
	side         models.Side
	revisions    func(ctx context.Context, id uuid.UUID) ([]revisionView[F], error)
	counterparts counterpartLoader[C]
}

// revisionsFrom lists an entity's revisions, oldest first. Returns ErrNotFound for an unknown
// entity.
func revisionsFrom[E any, R revision, F any](store entityStore[E, R, F], formData func(R) F) func(context.Context, uuid.UUID) ([]revisionView[F], error) {
	return func(ctx context.Context, id uuid.UUID) ([]revisionView[F], error) {
		if _, err := store.GetByID(ctx, id); err != nil {
			return nil, err
		}
		revisions, err := store.ListRevisions(ctx, id)
		if err != nil {
			return nil, err
		}
		views := make([]revisionView[F], 0, len(revisions))
		for _, rev := range revisions {
			h := rev.Header()
			views = append(views, revisionView[F]{ID: h.ID, FormData: formData(rev), SubmitInfo: h.SubmitInfo})
		}
		return views, nil
	}
}

func (src historySource[F, C]) load(ctx context.Context, edgeRepo repositories.RevisionEdgeRepository, id uuid.UUID) ([]history.Snapshot[F, C], error) {
	revisions, err := src.revisions(ctx, id)
	if err != nil {
		return nil, err
	}
	edges, err := edgeRepo.ListByRevisions(ctx, src.side, submittedIDs(revisions))
	if err != nil {
		return nil, err
	}
	counterparts, err := src.counterparts(ctx, counterpartRevisionIDs(src.side, edges))
	if err != nil {
		return nil, err
	}

	summarize := func(revisionID uuid.UUID) (C, bool) {
		cp, ok := counterparts[revisionID]
		return cp.Summary, ok
	}
	lookup := func(revisionID uuid.UUID) (*models.UpdateInfo, bool) {
		cp, ok := counterparts[revisionID]
		return cp.SubmitInfo, ok && cp.SubmitInfo != nil
	}

	inputs, err := buildHistoryInputs(src.side, revisions, edges, summarize)
	if err != nil {
		return nil, err
	}
	return history.Reconstruct(inputs, lookup)
}

// revisionView is the part of a contract or rate revision the reconstruction needs.
type revisionView[F any] struct {
	ID         uuid.UUID
	FormData   F
	SubmitInfo *models.UpdateInfo
}

func submittedIDs[F any](revisions []revisionView[F]) []uuid.UUID {
	var ids []uuid.UUID
	for _, rev := range revisions {
		if rev.SubmitInfo != nil {
			ids = append(ids, rev.ID)
		}
	}
	return ids
}

// counterpartRevisionIDs collects every counterpart revision the edges reference, including
// the counterpart revisions that invalidated them.
func counterpartRevisionIDs(side models.Side, edges []*models.RevisionEdge) []uuid.UUID {
	other := side.Counterpart()
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, e := range edges {
		add(e.RevisionID(other))
		if by := e.InvalidatedBy(other); by != nil {
			add(*by)
		}
	}
	return ids
}

// buildHistoryInputs attaches each edge to its self-side revision in the shape the sweep expects.
func buildHistoryInputs[F, C any](
	side models.Side,
	revisions []revisionView[F],
	edges []*models.RevisionEdge,
	summarize func(uuid.UUID) (C, bool),
) ([]history.Revision[F, C], error) {
	other := side.Counterpart()
	bySelf := make(map[uuid.UUID][]history.Edge[C], len(revisions))
	for _, e := range edges {
		counterpartID := e.RevisionID(other)
		counterpart, ok := summarize(counterpartID)
		if !ok {
			return nil, fmt.Errorf("%w: edge %d references missing %s revision %s",
				apperrors.ErrDataIntegrity, e.ID, other, counterpartID)
		}
		selfID := e.RevisionID(side)
		bySelf[selfID] = append(bySelf[selfID], history.Edge[C]{
			Counterpart:              counterpart,
			CounterpartRevisionID:    counterpartID,
			ValidAfter:               e.ValidAfter,
			ValidUntil:               e.ValidUntil,
			InvalidatedBySelf:        e.InvalidatedBy(side),
			InvalidatedByCounterpart: e.InvalidatedBy(other),
			IsRemoval:                e.IsRemoval,
		})
	}

	inputs := make([]history.Revision[F, C], 0, len(revisions))
	for _, rev := range revisions {
		inputs = append(inputs, history.Revision[F, C]{
			ID:         rev.ID,
			FormData:   rev.FormData,
			SubmitInfo: rev.SubmitInfo,
			Edges:      bySelf[rev.ID],
		})
	}
	return inputs, nil
}
