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

// ContractService defines the contract lifecycle: create, edit the draft, submit, unlock.
type ContractService interface {
	CreateContract(ctx context.Context, stateCode string, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.Contract, error)
	GetContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error)
	UpdateContractDraft(ctx context.Context, contractID uuid.UUID, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.ContractRevision, error)
	// SubmitContractRevision submits a draft revision, linking it to the latest submitted
	// revision of every staged rate.
	SubmitContractRevision(ctx context.Context, revisionID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error)
	// SubmitContract locates the contract's draft and submits it.
	SubmitContract(ctx context.Context, contractID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error)
	UnlockContract(ctx context.Context, contractID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.ContractRevision, error)
}

type contractService struct {
	*lifecycle[*models.Contract, *models.ContractRevision, models.ContractFormData, *models.RateRevisionSummary]
}

var contractModel = sideModel[*models.Contract, *models.ContractRevision, models.ContractFormData, *models.RateRevisionSummary]{
	newEntity: func(stateCode string) *models.Contract { return &models.Contract{StateCode: stateCode} },
	entityID:  func(c *models.Contract) uuid.UUID { return c.ID },
	stateCode: func(c *models.Contract) string { return c.StateCode },
	setRevisions: func(c *models.Contract, revisions []*models.ContractRevision, status models.SubmissionStatus) {
		c.Revisions, c.Status = revisions, status
	},
	newRevision: func(contractID uuid.UUID, formData models.ContractFormData, unlockInfo *models.UpdateInfo) *models.ContractRevision {
		return &models.ContractRevision{ContractID: contractID, FormData: formData, UnlockInfo: unlockInfo}
	},
	formData:        func(r *models.ContractRevision) models.ContractFormData { return r.FormData },
	setDraftLinks:   func(r *models.ContractRevision, rateIDs []uuid.UUID) { r.DraftRateIDs = rateIDs },
	setCounterparts: func(r *models.ContractRevision, rates []*models.RateRevisionSummary) { r.RateRevisions = rates },
}

// NewContractService creates a new contract service with dependencies. cache and m may be nil.
func NewContractService(
	tx database.Transactor,
	contracts repositories.ContractRepository,
	rates repositories.RateRepository,
	edges repositories.RevisionEdgeRepository,
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) ContractService {
	return newContractService(
		tx, contracts, rates,
		repositories.NewRevisionRepository(models.SideContract),
		repositories.NewRevisionRepository(models.SideRate),
		edges, cache, m, logger,
	)
}

func newContractService(
	tx database.Transactor,
	contracts repositories.ContractRepository,
	rates repositories.RateRepository,
	contractRevs, rateRevs repositories.RevisionRepository,
	edges repositories.RevisionEdgeRepository,
	cache HistoryCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *contractService {
	rateSummaries := counterpartsFrom[*models.Rate, *models.RateRevision, models.RateFormData](rates, (*models.RateRevision).Summary)
	return &contractService{newLifecycle(
		models.SideContract, tx,
		entityStore[*models.Contract, *models.ContractRevision, models.ContractFormData](contracts),
		contractRevs, rateRevs, edges, rateSummaries, contractModel,
		cache, m, logger.Named("contracts"),
	)}
}

var _ ContractService = (*contractService)(nil)

func (s *contractService) CreateContract(ctx context.Context, stateCode string, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.Contract, error) {
	return s.create(ctx, stateCode, formData, rateIDs)
}

func (s *contractService) GetContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	return s.get(ctx, contractID)
}

func (s *contractService) UpdateContractDraft(ctx context.Context, contractID uuid.UUID, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.ContractRevision, error) {
	return s.updateDraft(ctx, contractID, formData, rateIDs)
}

func (s *contractService) SubmitContractRevision(ctx context.Context, revisionID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	return s.submit(ctx, revisionID, submittedBy, reason)
}

func (s *contractService) SubmitContract(ctx context.Context, contractID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	return s.submitDraftOf(ctx, contractID, submittedBy, reason)
}

func (s *contractService) UnlockContract(ctx context.Context, contractID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	return s.unlock(ctx, contractID, unlockedBy, reason)
}
