package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/audit"
	"github.com/mc-review/submission-engine/pkg/auth"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/services"
)

// ScopeMiddleware attaches a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateContractRequest for POST /api/contracts
type CreateContractRequest struct {
	// StateCode defaults to the caller's state.
	StateCode string                  `json:"state_code,omitempty"`
	FormData  models.ContractFormData `json:"form_data"`
	RateIDs   []uuid.UUID             `json:"rate_ids,omitempty"`
}

// UpdateContractDraftRequest for PUT /api/contracts/{cid}/draft
type UpdateContractDraftRequest struct {
	FormData models.ContractFormData `json:"form_data"`
	RateIDs  []uuid.UUID             `json:"rate_ids"`
}

// ReasonRequest is the body of submit and unlock.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ContractHistoryResponse for GET /api/contracts/{cid}/revisions
type ContractHistoryResponse struct {
	Revisions []*models.ContractRevisionSnapshot `json:"revisions"`
	Total     int                                `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// ContractsHandler handles contract HTTP requests.
type ContractsHandler struct {
	contracts services.ContractService
	history   services.HistoryService
	auditor   *audit.Auditor
	logger    *zap.Logger
}

func NewContractsHandler(contracts services.ContractService, history services.HistoryService, auditor *audit.Auditor, logger *zap.Logger) *ContractsHandler {
	return &ContractsHandler{
		contracts: contracts,
		history:   history,
		auditor:   auditor,
		logger:    logger,
	}
}

// RegisterRoutes registers the contract routes on the given mux.
func (h *ContractsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/contracts"

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET "+base+"/{cid}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("PUT "+base+"/{cid}/draft", authMiddleware.RequireAuth(scope(h.UpdateDraft)))
	mux.HandleFunc("POST "+base+"/{cid}/submit", authMiddleware.RequireAuth(scope(h.Submit)))
	mux.HandleFunc("POST "+base+"/{cid}/unlock", authMiddleware.RequireCMSUser(scope(h.Unlock)))
	mux.HandleFunc("GET "+base+"/{cid}/revisions", authMiddleware.RequireAuth(scope(h.Revisions)))
}

// Create handles POST /api/contracts
func (h *ContractsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireStateUser(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateContractRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.StateCode == "" {
		req.StateCode = claims.State
	}
	if !claims.CanAccessState(req.StateCode) {
		forbidden(w, h.logger, "Cannot create a submission for another state")
		return
	}

	contract, err := h.contracts.CreateContract(r.Context(), req.StateCode, req.FormData, req.RateIDs)
	if err != nil {
		writeServiceError(w, h.logger, "create contract", err, zap.String("state_code", req.StateCode))
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, contract)
}

// Get handles GET /api/contracts/{cid}
func (h *ContractsHandler) Get(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.load(w, r)
	if !ok {
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, contract)
}

// UpdateDraft handles PUT /api/contracts/{cid}/draft
func (h *ContractsHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStateUser(w, r, h.logger); !ok {
		return
	}
	contract, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateContractDraftRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	draft, err := h.contracts.UpdateContractDraft(r.Context(), contract.ID, req.FormData, req.RateIDs)
	if err != nil {
		writeServiceError(w, h.logger, "update contract draft", err, zap.String("contract_id", contract.ID.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, draft)
}

// Submit handles POST /api/contracts/{cid}/submit
func (h *ContractsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStateUser(w, r, h.logger); !ok {
		return
	}
	contract, ok := h.load(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if !decodeOptionalBody(w, r, &req, h.logger) {
		return
	}
	userID, ok := actingUser(w, r, h.logger)
	if !ok {
		return
	}

	rev, err := h.contracts.SubmitContract(r.Context(), contract.ID, userID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "submit contract", err, zap.String("contract_id", contract.ID.String()))
		return
	}
	h.auditor.LogSubmitted(r.Context(), models.SideContract, contract.ID, rev.ID, req.Reason, r.RemoteAddr)
	writeSuccess(w, h.logger, http.StatusOK, rev)
}

// Unlock handles POST /api/contracts/{cid}/unlock. CMS users only.
func (h *ContractsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}
	var req ReasonRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.Reason == "" {
		badRequest(w, h.logger, "An unlock reason is required")
		return
	}
	userID, ok := actingUser(w, r, h.logger)
	if !ok {
		return
	}

	draft, err := h.contracts.UnlockContract(r.Context(), contractID, userID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "unlock contract", err, zap.String("contract_id", contractID.String()))
		return
	}
	h.auditor.LogUnlocked(r.Context(), models.SideContract, contractID, draft.ID, req.Reason, r.RemoteAddr)
	writeSuccess(w, h.logger, http.StatusOK, draft)
}

// Revisions handles GET /api/contracts/{cid}/revisions
func (h *ContractsHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.load(w, r)
	if !ok {
		return
	}

	history, err := h.history.FindContractRevisions(r.Context(), contract.ID)
	if err != nil {
		writeServiceError(w, h.logger, "load contract history", err, zap.String("contract_id", contract.ID.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, ContractHistoryResponse{Revisions: history, Total: len(history)})
}

// load fetches the contract named in the path and checks the caller may see its state.
func (h *ContractsHandler) load(w http.ResponseWriter, r *http.Request) (*models.Contract, bool) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return nil, false
	}
	contract, err := h.contracts.GetContract(r.Context(), contractID)
	if err != nil {
		writeServiceError(w, h.logger, "get contract", err, zap.String("contract_id", contractID.String()))
		return nil, false
	}
	if !canAccess(r, contract.StateCode) {
		h.auditor.LogAccessDenied(r.Context(), models.SideContract, contractID, r.RemoteAddr)
		writeServiceError(w, h.logger, "get contract", errOtherState(models.SideContract, contractID))
		return nil, false
	}
	return contract, true
}
