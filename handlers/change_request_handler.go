package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/middleware"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/enforcement"
	"github.com/ruleplane/backend/utils"
	"go.uber.org/zap"
)

// CreateChangeRequestRequest is the detector ingress payload reporting an
// unauthorized change to a governed file.
type CreateChangeRequestRequest struct {
	TeamID       uuid.UUID `json:"team_id" validate:"required"`
	RuleID       uuid.UUID `json:"rule_id" validate:"required"`
	FilePath     string    `json:"file_path" validate:"required"`
	OriginalHash string    `json:"original_hash"`
	ModifiedHash string    `json:"modified_hash"`
	DiffContent  string    `json:"diff_content"`
}

// EnforcementService defines the change request operations the handler
// depends on
type EnforcementService interface {
	CreateFromDetection(ctx context.Context, input enforcement.DetectionInput) (*models.ChangeRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error)
	List(ctx context.Context, filter repositories.ChangeRequestFilter) ([]*models.ChangeRequest, error)
	Approve(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ChangeRequest, error)
	Reject(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ChangeRequest, error)
}

// ChangeRequestHandler handles change request HTTP requests
type ChangeRequestHandler struct {
	enforcement EnforcementService
	logger      *zap.Logger
}

// NewChangeRequestHandler creates a new ChangeRequestHandler
func NewChangeRequestHandler(enforcementService EnforcementService, logger *zap.Logger) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		enforcement: enforcementService,
		logger:      logger,
	}
}

// HandleList handles GET /api/v1/change-requests
func (h *ChangeRequestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := utils.ParsePagination(r, 50, 200)

	filter := repositories.ChangeRequestFilter{Limit: limit, Offset: offset}

	if teamIDStr := r.URL.Query().Get("team_id"); teamIDStr != "" {
		teamID, err := uuid.Parse(teamIDStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid team_id format", nil)
			return
		}
		filter.TeamID = &teamID
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := models.ChangeRequestStatus(statusStr)
		if !status.Valid() {
			_ = utils.WriteBadRequest(w, "Invalid status filter", nil)
			return
		}
		filter.Status = &status
	}

	list, err := h.enforcement.List(ctx, filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleCreate handles POST /api/v1/change-requests
func (h *ChangeRequestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req CreateChangeRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	cr, err := h.enforcement.CreateFromDetection(ctx, enforcement.DetectionInput{
		TeamID:       req.TeamID,
		RuleID:       req.RuleID,
		FilePath:     req.FilePath,
		OriginalHash: req.OriginalHash,
		ModifiedHash: req.ModifiedHash,
		DiffContent:  req.DiffContent,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("change request created",
		zap.String("request_id", requestID),
		zap.String("change_request_id", cr.ID.String()),
		zap.String("enforcement_mode", string(cr.EnforcementMode)))

	_ = utils.WriteCreated(w, cr)
}

// HandleGet handles GET /api/v1/change-requests/{id}
func (h *ChangeRequestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	cr, err := h.enforcement.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, cr)
}

// HandleApprove handles POST /api/v1/change-requests/{id}/approve
func (h *ChangeRequestHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleResolution(w, r, h.enforcement.Approve)
}

// HandleReject handles POST /api/v1/change-requests/{id}/reject
func (h *ChangeRequestHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleResolution(w, r, h.enforcement.Reject)
}

func (h *ChangeRequestHandler) handleResolution(w http.ResponseWriter, r *http.Request, resolve func(context.Context, services.Actor, uuid.UUID) (*models.ChangeRequest, error)) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	cr, err := resolve(ctx, actor, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("change request resolved",
		zap.String("change_request_id", cr.ID.String()),
		zap.String("status", string(cr.Status)))

	_ = utils.WriteOK(w, cr)
}
