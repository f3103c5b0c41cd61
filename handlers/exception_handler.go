package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/middleware"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/exception"
	"github.com/ruleplane/backend/utils"
	"go.uber.org/zap"
)

// FileExceptionRequest represents a request to file an exception against
// a change request.
type FileExceptionRequest struct {
	ChangeRequestID uuid.UUID            `json:"change_request_id" validate:"required"`
	Justification   string               `json:"justification" validate:"required"`
	ExceptionType   models.ExceptionType `json:"exception_type" validate:"required,oneof=time_limited permanent"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
}

// ApproveExceptionRequest optionally overrides the expiry on approval
type ApproveExceptionRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ExceptionService defines the exception operations the handler depends on
type ExceptionService interface {
	File(ctx context.Context, actor services.Actor, input exception.FileInput) (*models.ExceptionRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExceptionRequest, error)
	List(ctx context.Context, filter repositories.ExceptionFilter) ([]*models.ExceptionRequest, error)
	Approve(ctx context.Context, actor services.Actor, id uuid.UUID, expiresAt *time.Time) (*models.ExceptionRequest, error)
	Deny(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ExceptionRequest, error)
}

// ExceptionHandler handles exception request HTTP requests
type ExceptionHandler struct {
	exceptions ExceptionService
	logger     *zap.Logger
}

// NewExceptionHandler creates a new ExceptionHandler
func NewExceptionHandler(exceptionService ExceptionService, logger *zap.Logger) *ExceptionHandler {
	return &ExceptionHandler{
		exceptions: exceptionService,
		logger:     logger,
	}
}

// HandleList handles GET /api/v1/exceptions
func (h *ExceptionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := utils.ParsePagination(r, 50, 200)

	filter := repositories.ExceptionFilter{Limit: limit, Offset: offset}

	if teamIDStr := r.URL.Query().Get("team_id"); teamIDStr != "" {
		teamID, err := uuid.Parse(teamIDStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid team_id format", nil)
			return
		}
		filter.TeamID = &teamID
	}
	if crIDStr := r.URL.Query().Get("change_request_id"); crIDStr != "" {
		crID, err := uuid.Parse(crIDStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid change_request_id format", nil)
			return
		}
		filter.ChangeRequestID = &crID
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := models.ExceptionStatus(statusStr)
		if !status.Valid() {
			_ = utils.WriteBadRequest(w, "Invalid status filter", nil)
			return
		}
		filter.Status = &status
	}

	list, err := h.exceptions.List(ctx, filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleFile handles POST /api/v1/exceptions
func (h *ExceptionHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	actor, ok := actorFromContext(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req FileExceptionRequest
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

	exc, err := h.exceptions.File(ctx, actor, exception.FileInput{
		ChangeRequestID: req.ChangeRequestID,
		Justification:   req.Justification,
		ExceptionType:   req.ExceptionType,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("exception filed",
		zap.String("request_id", requestID),
		zap.String("exception_id", exc.ID.String()),
		zap.String("change_request_id", exc.ChangeRequestID.String()))

	_ = utils.WriteCreated(w, exc)
}

// HandleGet handles GET /api/v1/exceptions/{id}
func (h *ExceptionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	exc, err := h.exceptions.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, exc)
}

// HandleApprove handles POST /api/v1/exceptions/{id}/approve
func (h *ExceptionHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
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

	// The body is optional.
	var req ApproveExceptionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	exc, err := h.exceptions.Approve(ctx, actor, id, req.ExpiresAt)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("exception approved",
		zap.String("exception_id", exc.ID.String()))

	_ = utils.WriteOK(w, exc)
}

// HandleDeny handles POST /api/v1/exceptions/{id}/deny
func (h *ExceptionHandler) HandleDeny(w http.ResponseWriter, r *http.Request) {
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

	exc, err := h.exceptions.Deny(ctx, actor, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("exception denied",
		zap.String("exception_id", exc.ID.String()))

	_ = utils.WriteOK(w, exc)
}
