package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/auth"
	"github.com/mc-review/submission-engine/pkg/models"
)

// mockContractService serves contracts from a map and records the last mutation.
type mockContractService struct {
	contracts map[uuid.UUID]*models.Contract
	createErr error
	submitErr error
	unlockErr error
	updateErr error

	createdState   string
	submittedBy    uuid.UUID
	submitReason   string
	unlockedBy     uuid.UUID
	unlockReason   string
	updatedRateIDs []uuid.UUID
}

func (m *mockContractService) CreateContract(_ context.Context, stateCode string, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.Contract, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createdState = stateCode
	c := &models.Contract{ID: uuid.New(), StateCode: stateCode, StateNumber: 1, Status: models.StatusDraft}
	c.Revisions = []*models.ContractRevision{{ID: uuid.New(), ContractID: c.ID, FormData: formData, DraftRateIDs: rateIDs}}
	if m.contracts == nil {
		m.contracts = map[uuid.UUID]*models.Contract{}
	}
	m.contracts[c.ID] = c
	return c, nil
}

func (m *mockContractService) GetContract(_ context.Context, contractID uuid.UUID) (*models.Contract, error) {
	c, ok := m.contracts[contractID]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", apperrors.ErrNotFound, contractID)
	}
	return c, nil
}

func (m *mockContractService) UpdateContractDraft(_ context.Context, contractID uuid.UUID, formData models.ContractFormData, rateIDs []uuid.UUID) (*models.ContractRevision, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updatedRateIDs = rateIDs
	return &models.ContractRevision{ID: uuid.New(), ContractID: contractID, FormData: formData, DraftRateIDs: rateIDs}, nil
}

func (m *mockContractService) SubmitContractRevision(ctx context.Context, revisionID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	return nil, fmt.Errorf("SubmitContractRevision not expected")
}

func (m *mockContractService) SubmitContract(_ context.Context, contractID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submittedBy, m.submitReason = submittedBy, reason
	return &models.ContractRevision{
		ID:         uuid.New(),
		ContractID: contractID,
		SubmitInfo: &models.UpdateInfo{UpdatedBy: submittedBy, UpdatedReason: reason},
	}, nil
}

func (m *mockContractService) UnlockContract(_ context.Context, contractID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.ContractRevision, error) {
	if m.unlockErr != nil {
		return nil, m.unlockErr
	}
	m.unlockedBy, m.unlockReason = unlockedBy, reason
	return &models.ContractRevision{
		ID:         uuid.New(),
		ContractID: contractID,
		UnlockInfo: &models.UpdateInfo{UpdatedBy: unlockedBy, UpdatedReason: reason},
	}, nil
}

// mockRateService mirrors mockContractService for rates.
type mockRateService struct {
	rates     map[uuid.UUID]*models.Rate
	createErr error
	submitErr error
	unlockErr error
	updateErr error

	createdState       string
	submittedBy        uuid.UUID
	submitReason       string
	unlockReason       string
	updatedContractIDs []uuid.UUID
}

func (m *mockRateService) CreateRate(_ context.Context, stateCode string, formData models.RateFormData, contractIDs []uuid.UUID) (*models.Rate, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createdState = stateCode
	r := &models.Rate{ID: uuid.New(), StateCode: stateCode, Status: models.StatusDraft}
	r.Revisions = []*models.RateRevision{{ID: uuid.New(), RateID: r.ID, FormData: formData, DraftContractIDs: contractIDs}}
	if m.rates == nil {
		m.rates = map[uuid.UUID]*models.Rate{}
	}
	m.rates[r.ID] = r
	return r, nil
}

func (m *mockRateService) GetRate(_ context.Context, rateID uuid.UUID) (*models.Rate, error) {
	r, ok := m.rates[rateID]
	if !ok {
		return nil, fmt.Errorf("%w: rate %s", apperrors.ErrNotFound, rateID)
	}
	return r, nil
}

func (m *mockRateService) UpdateRateDraft(_ context.Context, rateID uuid.UUID, formData models.RateFormData, contractIDs []uuid.UUID) (*models.RateRevision, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updatedContractIDs = contractIDs
	return &models.RateRevision{ID: uuid.New(), RateID: rateID, FormData: formData, DraftContractIDs: contractIDs}, nil
}

func (m *mockRateService) SubmitRateRevision(_ context.Context, rateID uuid.UUID, submittedBy uuid.UUID, reason string) (*models.RateRevision, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submittedBy, m.submitReason = submittedBy, reason
	return &models.RateRevision{
		ID:         uuid.New(),
		RateID:     rateID,
		SubmitInfo: &models.UpdateInfo{UpdatedBy: submittedBy, UpdatedReason: reason},
	}, nil
}

func (m *mockRateService) UnlockRate(_ context.Context, rateID uuid.UUID, unlockedBy uuid.UUID, reason string) (*models.RateRevision, error) {
	if m.unlockErr != nil {
		return nil, m.unlockErr
	}
	m.unlockReason = reason
	return &models.RateRevision{ID: uuid.New(), RateID: rateID}, nil
}

type mockHistoryService struct {
	contractHistory []*models.ContractRevisionSnapshot
	rateHistory     []*models.RateRevisionSnapshot
	err             error
}

func (m *mockHistoryService) FindContractRevisions(context.Context, uuid.UUID) ([]*models.ContractRevisionSnapshot, error) {
	return m.contractHistory, m.err
}

func (m *mockHistoryService) FindRate(context.Context, uuid.UUID) ([]*models.RateRevisionSnapshot, error) {
	return m.rateHistory, m.err
}

// mockAuthService accepts every request as the configured claims, or rejects all when nil.
type mockAuthService struct {
	claims *auth.Claims
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.claims == nil {
		return nil, "", auth.ErrMissingAuthorization
	}
	return m.claims, "test-token", nil
}

func stateUser(state string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             auth.RoleStateUser,
		State:            state,
	}
}

func cmsUser() *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             auth.RoleCMSUser,
	}
}

func passthroughScope(next http.HandlerFunc) http.HandlerFunc { return next }

// withClaims returns req carrying claims, as RequireAuth would leave it.
func withClaims(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), claims, "test-token"))
}
