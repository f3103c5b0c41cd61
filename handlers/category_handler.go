package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/utils"
	"go.uber.org/zap"
)

// CreateCategoryRequest represents a request to create a category
type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// CategoryService defines the category operations the handler depends on
type CategoryService interface {
	Create(ctx context.Context, actor services.Actor, name, description string) (*models.Category, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context) ([]*models.Category, error)
	Delete(ctx context.Context, actor services.Actor, id uuid.UUID) error
}

// CategoryHandler handles category HTTP requests
type CategoryHandler struct {
	categories CategoryService
	logger     *zap.Logger
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categoryService CategoryService, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categoryService,
		logger:     logger,
	}
}

// HandleList handles GET /api/v1/categories
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.categories.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleCreate handles POST /api/v1/categories
func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	category, err := h.categories.Create(ctx, actor, req.Name, req.Description)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, category)
}

// HandleGet handles GET /api/v1/categories/{id}
func (h *CategoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	category, err := h.categories.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, category)
}

// HandleDelete handles DELETE /api/v1/categories/{id}
// Referencing rules are detached, not deleted.
func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.categories.Delete(ctx, actor, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
