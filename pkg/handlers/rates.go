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

// CreateRateRequest for POST /api/rates
type CreateRateRequest struct {
	StateCode   string              `json:"state_code,omitempty"`
	FormData    models.RateFormData `json:"form_data"`
	ContractIDs []uuid.UUID         `json:"contract_ids,omitempty"`
}

// UpdateRateDraftRequest for PUT /api/rates/{rid}/draft
type UpdateRateDraftRequest struct {
	FormData    models.RateFormData `json:"form_data"`
	ContractIDs []uuid.UUID         `json:"contract_ids"`
}

// RateHistoryResponse for GET /api/rates/{rid}/revisions
type RateHistoryResponse struct {
	Revisions []*models.RateRevisionSnapshot `json:"revisions"`
	Total     int                            `json:"total"`
}

// RatesHandler handles rate HTTP requests. Access rules match ContractsHandler.
type RatesHandler struct {
	rates   services.RateService
	history services.HistoryService
	auditor *audit.Auditor
	logger  *zap.Logger
}

func NewRatesHandler(rates services.RateService, history services.HistoryService, auditor *audit.Auditor, logger *zap.Logger) *RatesHandler {
	return &RatesHandler{
		rates:   rates,
		history: history,
		auditor: auditor,
		logger:  logger,
	}
}

func (h *RatesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/rates"

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET "+base+"/{rid}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("PUT "+base+"/{rid}/draft", authMiddleware.RequireAuth(scope(h.UpdateDraft)))
	mux.HandleFunc("POST "+base+"/{rid}/submit", authMiddleware.RequireAuth(scope(h.Submit)))
	mux.HandleFunc("POST "+base+"/{rid}/unlock", authMiddleware.RequireCMSUser(scope(h.Unlock)))
	mux.HandleFunc("GET "+base+"/{rid}/revisions", authMiddleware.RequireAuth(scope(h.Revisions)))
}

func (h *RatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireStateUser(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateRateRequest
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

	rate, err := h.rates.CreateRate(r.Context(), req.StateCode, req.FormData, req.ContractIDs)
	if err != nil {
		writeServiceError(w, h.logger, "create rate", err, zap.String("state_code", req.StateCode))
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, rate)
}

func (h *RatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rate, ok := h.load(w, r)
	if !ok {
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, rate)
}

func (h *RatesHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStateUser(w, r, h.logger); !ok {
		return
	}
	rate, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateRateDraftRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	draft, err := h.rates.UpdateRateDraft(r.Context(), rate.ID, req.FormData, req.ContractIDs)
	if err != nil {
		writeServiceError(w, h.logger, "update rate draft", err, zap.String("rate_id", rate.ID.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, draft)
}

func (h *RatesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStateUser(w, r, h.logger); !ok {
		return
	}
	rate, ok := h.load(w, r)
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

	rev, err := h.rates.SubmitRateRevision(r.Context(), rate.ID, userID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "submit rate", err, zap.String("rate_id", rate.ID.String()))
		return
	}
	h.auditor.LogSubmitted(r.Context(), models.SideRate, rate.ID, rev.ID, req.Reason, r.RemoteAddr)
	writeSuccess(w, h.logger, http.StatusOK, rev)
}

func (h *RatesHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	rateID, ok := ParseRateID(w, r, h.logger)
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

	draft, err := h.rates.UnlockRate(r.Context(), rateID, userID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "unlock rate", err, zap.String("rate_id", rateID.String()))
		return
	}
	h.auditor.LogUnlocked(r.Context(), models.SideRate, rateID, draft.ID, req.Reason, r.RemoteAddr)
	writeSuccess(w, h.logger, http.StatusOK, draft)
}

func (h *RatesHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	rate, ok := h.load(w, r)
	if !ok {
		return
	}

	history, err := h.history.FindRate(r.Context(), rate.ID)
	if err != nil {
		writeServiceError(w, h.logger, "load rate history", err, zap.String("rate_id", rate.ID.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, RateHistoryResponse{Revisions: history, Total: len(history)})
}

func (h *RatesHandler) load(w http.ResponseWriter, r *http.Request) (*models.Rate, bool) {
	rateID, ok := ParseRateID(w, r, h.logger)
	if !ok {
		return nil, false
	}
	rate, err := h.rates.GetRate(r.Context(), rateID)
	if err != nil {
		writeServiceError(w, h.logger, "get rate", err, zap.String("rate_id", rateID.String()))
		return nil, false
	}
	if !canAccess(r, rate.StateCode) {
		h.auditor.LogAccessDenied(r.Context(), models.SideRate, rateID, r.RemoteAddr)
		writeServiceError(w, h.logger, "get rate", errOtherState(models.SideRate, rateID))
		return nil, false
	}
	return rate, true
}
