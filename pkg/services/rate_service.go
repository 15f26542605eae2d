package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/metrics"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// RateService defines the rate lifecycle. It mirrors ContractService with the roles swapped.
type RateService interface {
	CreateRate(ctx context.Context, stateCode string, formData models.RateFormData, contractIDs []uuid.UUID) (*models.Rate, error)
	GetRate(ctx context.Context, rateID uuid.UUID) (*models.Rate, error)
	UpdateRateDraft(ctx context.Context, rateID uuid.UUID, formData models.RateFormData, contractIDs []uuid.UUID) (*models.RateRevision, error)
	// SubmitRateRevision submits the rate's draft, linking it to the latest submitted revision
	// of every staged contract.
	SubmitRateRevision(ctx context.Context, rateID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.RateRevision, error)
	UnlockRate(ctx context.Context, rateID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.RateRevision, error)
}

type rateService struct {
	*lifecycle[*models.Rate, *models.RateRevision, models.RateFormData, *models.ContractRevisionSummary]
}

var rateModel = sideModel[*models.Rate, *models.RateRevision, models.RateFormData, *models.ContractRevisionSummary]{
	newEntity: func(stateCode string) *models.Rate { return &models.Rate{StateCode: stateCode} },
	entityID:  func(r *models.Rate) uuid.UUID { return r.ID },
	stateCode: func(r *models.Rate) string { return r.StateCode },
	setRevisions: func(r *models.Rate, revisions []*models.RateRevision, status models.SubmissionStatus) {
		r.Revisions, r.Status = revisions, status
	},
	newRevision: func(rateID uuid.UUID, formData models.RateFormData, unlockInfo *models.UpdateInfo) *models.RateRevision {
		return &models.RateRevision{RateID: rateID, FormData: formData, UnlockInfo: unlockInfo}
	},
	formData:        func(r *models.RateRevision) models.RateFormData { return r.FormData },
	setDraftLinks:   func(r *models.RateRevision, contractIDs []uuid.UUID) { r.DraftContractIDs = contractIDs },
	setCounterparts: func(r *models.RateRevision, contracts []*models.ContractRevisionSummary) { r.ContractRevisions = contracts },
}

// NewRateService creates a new rate service with dependencies. cache and m may be nil.
func NewRateService(
	tx database.Transactor,
	contracts repositories.ContractRepository,
	rates repositories.RateRepository,
	edges repositories.RevisionEdgeRepository,
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) RateService {
	return newRateService(
		tx, contracts, rates,
		repositories.NewRevisionRepository(models.SideContract),
		repositories.NewRevisionRepository(models.SideRate),
		edges, cache, m, logger,
	)
}

func newRateService(
	tx database.Transactor,
	contracts repositories.ContractRepository,
	rates repositories.RateRepository,
	contractRevs, rateRevs repositories.RevisionRepository,
	edges repositories.RevisionEdgeRepository,
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *rateService {
	contractSummaries := counterpartsFrom[*models.Contract, *models.ContractRevision, models.ContractFormData](contracts, (*models.ContractRevision).Summary)
	return &rateService{newLifecycle(
		models.SideRate, tx,
		entityStore[*models.Rate, *models.RateRevision, models.RateFormData](rates),
		rateRevs, contractRevs, edges, contractSummaries, rateModel,
		cache, m, logger.Named("rates"),
	)}
}

var _ RateService = (*rateService)(nil)

func (s *rateService) CreateRate(ctx context.Context, stateCode string, formData models.RateFormData, contractIDs []uuid.UUID) (*models.Rate, error) {
	return s.create(ctx, stateCode, formData, contractIDs)
}

func (s *rateService) GetRate(ctx context.Context, rateID uuid.UUID) (*models.Rate, error) {
	return s.get(ctx, rateID)
}

func (s *rateService) UpdateRateDraft(ctx context.Context, rateID uuid.UUID, formData models.RateFormData, contractIDs []uuid.UUID) (*models.RateRevision, error) {
	return s.updateDraft(ctx, rateID, formData, contractIDs)
}

func (s *rateService) SubmitRateRevision(ctx context.Context, rateID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.RateRevision, error) {
	return s.submitDraftOf(ctx, rateID, submittedBy, reason)
}

func (s *rateService) UnlockRate(ctx context.Context, rateID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.RateRevision, error) {
	return s.unlock(ctx, rateID, unlockedBy, reason)
}
