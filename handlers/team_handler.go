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

// CreateTeamRequest represents a request to create a team
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateTeamSettingsRequest toggles global rule inheritance for a team
type UpdateTeamSettingsRequest struct {
	InheritGlobalRules *bool `json:"inherit_global_rules" validate:"required"`
}

// TeamService defines the team operations the handler depends on
type TeamService interface {
	Create(ctx context.Context, actor services.Actor, name string) (*models.Team, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Team, error)
	List(ctx context.Context, limit, offset int) ([]*models.Team, error)
	SetInheritGlobalRules(ctx context.Context, actor services.Actor, id uuid.UUID, inherit bool) (*models.Team, error)
}

// TeamHandler handles team HTTP requests
type TeamHandler struct {
	teams  TeamService
	logger *zap.Logger
}

// NewTeamHandler creates a new TeamHandler
func NewTeamHandler(teamService TeamService, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{
		teams:  teamService,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/teams
func (h *TeamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := utils.ParsePagination(r, 50, 200)

	list, err := h.teams.List(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleCreate handles POST /api/v1/teams
func (h *TeamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	team, err := h.teams.Create(ctx, actor, req.Name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, team)
}

// HandleGet handles GET /api/v1/teams/{id}
func (h *TeamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	team, err := h.teams.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, team)
}

// HandleUpdateSettings handles PUT /api/v1/teams/{id}/settings
func (h *TeamHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateTeamSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	team, err := h.teams.SetInheritGlobalRules(ctx, actor, id, *req.InheritGlobalRules)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("team settings updated",
		zap.String("team_id", team.ID.String()),
		zap.Bool("inherit_global_rules", team.InheritGlobalRules))

	_ = utils.WriteOK(w, team)
}
