package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruleplane/backend/middleware"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/rules"
	"github.com/ruleplane/backend/utils"
	"go.uber.org/zap"
)

// CreateRuleRequest represents a request to create a rule
type CreateRuleRequest struct {
	Name                  string                 `json:"name" validate:"required"`
	Description           string                 `json:"description"`
	Content               string                 `json:"content" validate:"required"`
	TargetLayer           models.TargetLayer     `json:"target_layer" validate:"required,oneof=organization team project"`
	TeamID                *uuid.UUID             `json:"team_id,omitempty"`
	Force                 bool                   `json:"force"`
	EnforcementMode       models.EnforcementMode `json:"enforcement_mode" validate:"required,oneof=block temporary warning"`
	TemporaryTimeoutHours int                    `json:"temporary_timeout_hours" validate:"gte=0"`
	PriorityWeight        int                    `json:"priority_weight"`
	Overridable           *bool                  `json:"overridable,omitempty"`
	CategoryID            *uuid.UUID             `json:"category_id,omitempty"`
	EffectiveStart        *time.Time             `json:"effective_start,omitempty"`
	EffectiveEnd          *time.Time             `json:"effective_end,omitempty"`
	Triggers              []models.Trigger       `json:"triggers,omitempty"`
}

// DecisionRequest represents an approve or reject decision body
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// RuleService defines the rule operations the handler depends on
type RuleService interface {
	Create(ctx context.Context, actor services.Actor, input rules.CreateRuleInput) (*models.Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]*models.Rule, error)
	ListByStatus(ctx context.Context, status models.RuleStatus, limit, offset int) ([]*models.Rule, error)
	Update(ctx context.Context, actor services.Actor, id uuid.UUID, input rules.UpdateRuleInput) (*models.Rule, error)
	Delete(ctx context.Context, actor services.Actor, id uuid.UUID) error
	Submit(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Rule, error)
	ResolveEffective(ctx context.Context, teamID uuid.UUID, target models.MatchTarget, now time.Time) ([]*models.Rule, error)
}

// ApprovalService defines the quorum operations the handler depends on
type ApprovalService interface {
	RecordDecision(ctx context.Context, actor services.Actor, ruleID uuid.UUID, decision models.Decision, comment string) (*models.ApprovalStatus, error)
	Status(ctx context.Context, ruleID uuid.UUID) (*models.ApprovalStatus, error)
}

// RuleHandler handles rule-related HTTP requests
type RuleHandler struct {
	rules     RuleService
	approvals ApprovalService
	logger    *zap.Logger
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(ruleService RuleService, approvalService ApprovalService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		rules:     ruleService,
		approvals: approvalService,
		logger:    logger,
	}
}

// HandleList handles GET /api/v1/rules
func (h *RuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := utils.ParsePagination(r, 50, 200)

	if teamIDStr := r.URL.Query().Get("team_id"); teamIDStr != "" {
		teamID, err := uuid.Parse(teamIDStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid team_id format", nil)
			return
		}
		list, err := h.rules.ListByTeam(ctx, teamID, limit, offset)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		_ = utils.WriteOK(w, list)
		return
	}

	status := models.RuleStatus(r.URL.Query().Get("status"))
	if status == "" {
		_ = utils.WriteBadRequest(w, "Either team_id or status is required", nil)
		return
	}
	if !status.Valid() {
		_ = utils.WriteBadRequest(w, "Invalid status filter", nil)
		return
	}

	list, err := h.rules.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleCreate handles POST /api/v1/rules
func (h *RuleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	actor, ok := actorFromContext(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateRuleRequest
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

	rule, err := h.rules.Create(ctx, actor, ruleInputFromRequest(req))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule created",
		zap.String("request_id", requestID),
		zap.String("rule_id", rule.ID.String()))

	_ = utils.WriteCreated(w, rule)
}

// HandleGet handles GET /api/v1/rules/{id}
func (h *RuleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleUpdate handles PUT /api/v1/rules/{id}
func (h *RuleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
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

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.rules.Update(ctx, actor, id, ruleInputFromRequest(req))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleDelete handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.rules.Delete(ctx, actor, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleSubmit handles POST /api/v1/rules/{id}/submit
func (h *RuleHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
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

	rule, err := h.rules.Submit(ctx, actor, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleApprove handles POST /api/v1/rules/{id}/approve
func (h *RuleHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, models.DecisionApproved)
}

// HandleReject handles POST /api/v1/rules/{id}/reject
func (h *RuleHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, models.DecisionRejected)
}

func (h *RuleHandler) handleDecision(w http.ResponseWriter, r *http.Request, decision models.Decision) {
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

	// The body is optional for approvals.
	var req DecisionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	status, err := h.approvals.RecordDecision(ctx, actor, id, decision, req.Comment)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("decision recorded",
		zap.String("rule_id", id.String()),
		zap.String("decision", string(decision)),
		zap.Int("current_count", status.CurrentCount),
		zap.Int("required_count", status.RequiredCount))

	_ = utils.WriteOK(w, status)
}

// HandleApprovalStatus handles GET /api/v1/rules/{id}/approval-status
func (h *RuleHandler) HandleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.approvals.Status(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, status)
}

// HandleEffective handles GET /api/v1/rules/effective
func (h *RuleHandler) HandleEffective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	teamIDStr := q.Get("team_id")
	if teamIDStr == "" {
		_ = utils.WriteBadRequest(w, "team_id is required", nil)
		return
	}
	teamID, err := uuid.Parse(teamIDStr)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid team_id format", nil)
		return
	}

	target := models.MatchTarget{
		FilePath:     q.Get("file_path"),
		ContextTypes: splitCSV(q.Get("context_types")),
		Tags:         splitCSV(q.Get("tags")),
	}

	effective, err := h.rules.ResolveEffective(ctx, teamID, target, time.Now())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, effective)
}

// ruleInputFromRequest maps the request body onto a service input
func ruleInputFromRequest(req CreateRuleRequest) rules.CreateRuleInput {
	overridable := true
	if req.Overridable != nil {
		overridable = *req.Overridable
	}
	return rules.CreateRuleInput{
		Name:                  req.Name,
		Description:           req.Description,
		Content:               req.Content,
		TargetLayer:           req.TargetLayer,
		TeamID:                req.TeamID,
		Force:                 req.Force,
		EnforcementMode:       req.EnforcementMode,
		TemporaryTimeoutHours: req.TemporaryTimeoutHours,
		PriorityWeight:        req.PriorityWeight,
		Overridable:           overridable,
		CategoryID:            req.CategoryID,
		EffectiveStart:        req.EffectiveStart,
		EffectiveEnd:          req.EffectiveEnd,
		Triggers:              req.Triggers,
	}
}

// parseIDParam parses the {id} route parameter, writing a 400 on failure
func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// splitCSV splits a comma separated query value, dropping empty items
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
