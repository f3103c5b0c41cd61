package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/events"
	"go.uber.org/zap"
)

const maxTimeoutHours = 168

// Service manages the rule lifecycle: draft authoring, submission for
// approval, and effective-rule resolution. Terminal rules are
// append-only; re-editing a rejected rule returns it to draft.
type Service struct {
	ruleRepo   repositories.RuleRepository
	teamRepo   repositories.TeamRepository
	auditor    *audit.Service
	dispatcher *events.Dispatcher
	logger     *zap.Logger
}

// NewService creates a new rules Service
func NewService(
	ruleRepo repositories.RuleRepository,
	teamRepo repositories.TeamRepository,
	auditor *audit.Service,
	dispatcher *events.Dispatcher,
	logger *zap.Logger,
) *Service {
	return &Service{
		ruleRepo:   ruleRepo,
		teamRepo:   teamRepo,
		auditor:    auditor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateRuleInput carries the fields for a new draft rule
type CreateRuleInput struct {
	Name                  string
	Description           string
	Content               string
	TargetLayer           models.TargetLayer
	TeamID                *uuid.UUID
	Force                 bool
	EnforcementMode       models.EnforcementMode
	TemporaryTimeoutHours int
	PriorityWeight        int
	Overridable           bool
	CategoryID            *uuid.UUID
	EffectiveStart        *time.Time
	EffectiveEnd          *time.Time
	Triggers              []models.Trigger
}

// UpdateRuleInput carries the mutable fields of an editable rule.
type UpdateRuleInput = CreateRuleInput

// Create creates a new draft rule
func (s *Service) Create(ctx context.Context, actor services.Actor, input CreateRuleInput) (*models.Rule, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	rule := models.NewRule(input.Name, input.Content, input.TargetLayer, actor.ID)
	applyInput(rule, input)

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, services.WrapInternal("failed to create rule", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeRule, rule.ID, models.AuditActionCreated, actor.ID, actor.Name).
		WithChanges(audit.FieldDiff(nil, audit.Flatten(rule))))
	s.publishLifecycle(events.EventRuleCreated, rule, actor)

	s.logger.Info("rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("layer", string(rule.TargetLayer)),
		zap.String("actor", actor.Name))

	return rule, nil
}

// Get retrieves a rule by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapInternal("failed to get rule", err)
	}
	return rule, nil
}

// ListByTeam retrieves the rules owned by a team
func (s *Service) ListByTeam(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]*models.Rule, error) {
	rules, err := s.ruleRepo.ListByTeam(ctx, teamID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list rules", err)
	}
	return rules, nil
}

// ListByStatus retrieves rules in a lifecycle state
func (s *Service) ListByStatus(ctx context.Context, status models.RuleStatus, limit, offset int) ([]*models.Rule, error) {
	rules, err := s.ruleRepo.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list rules", err)
	}
	return rules, nil
}

// Update mutates an editable rule. Updating a rejected rule returns it
// to draft so it can be resubmitted.
func (s *Service) Update(ctx context.Context, actor services.Actor, id uuid.UUID, input UpdateRuleInput) (*models.Rule, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !rule.Editable() {
		return nil, services.NewDomainError(services.ErrorTypeInvalidState,
			"only draft or rejected rules can be edited", nil).
			WithDetail("status", string(rule.Status))
	}

	before := audit.Flatten(rule)

	if rule.Status == models.RuleStatusRejected {
		ok, err := s.ruleRepo.UpdateStatusFrom(ctx, id, models.RuleStatusRejected, models.RuleStatusDraft, nil)
		if err != nil {
			return nil, services.WrapInternal("failed to reset rejected rule", err)
		}
		if !ok {
			return nil, services.ErrInvalidTransition
		}
		rule.Status = models.RuleStatusDraft
	}

	applyInput(rule, input)
	rule.Name = input.Name
	rule.Content = input.Content
	rule.UpdatedAt = time.Now()

	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapInternal("failed to update rule", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeRule, rule.ID, models.AuditActionUpdated, actor.ID, actor.Name).
		WithChanges(audit.FieldDiff(before, audit.Flatten(rule))))
	s.publishLifecycle(events.EventRuleUpdated, rule, actor)

	return rule, nil
}

// Delete removes a rule. Only drafts can be deleted; everything past
// draft stays for the audit trail.
func (s *Service) Delete(ctx context.Context, actor services.Actor, id uuid.UUID) error {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if rule.Status != models.RuleStatusDraft {
		return services.NewDomainError(services.ErrorTypeInvalidState,
			"only draft rules can be deleted", nil).
			WithDetail("status", string(rule.Status))
	}

	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrRuleNotFound
		}
		return services.WrapInternal("failed to delete rule", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeRule, id, models.AuditActionDeleted, actor.ID, actor.Name))
	s.publishLifecycle(events.EventRuleDeleted, rule, actor)
	return nil
}

// Submit moves a draft (or rejected) rule into the approval pipeline.
func (s *Service) Submit(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Rule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if rule.Name == "" {
		return nil, services.ErrEmptyRuleName
	}
	if rule.Content == "" {
		return nil, services.ErrEmptyContent
	}
	if !rule.Editable() {
		return nil, services.NewDomainError(services.ErrorTypeInvalidTransition,
			"rule can only be submitted from draft or rejected", nil).
			WithDetail("status", string(rule.Status))
	}

	now := time.Now()
	ok, err := s.ruleRepo.UpdateStatusFrom(ctx, id, rule.Status, models.RuleStatusPending, &now)
	if err != nil {
		return nil, services.WrapInternal("failed to submit rule", err)
	}
	if !ok {
		return nil, services.ErrInvalidTransition
	}

	fromStatus := rule.Status
	rule.Status = models.RuleStatusPending
	rule.SubmittedAt = &now

	s.auditor.RecordTransition(models.EntityTypeRule, id, models.AuditActionSubmitted, actor,
		string(fromStatus), string(models.RuleStatusPending))

	s.publishLifecycle(events.EventRuleSubmitted, rule, actor)

	s.logger.Info("rule submitted",
		zap.String("rule_id", id.String()),
		zap.String("actor", actor.Name))

	return rule, nil
}

// publishLifecycle emits the single event each mutating call produces.
func (s *Service) publishLifecycle(eventType events.EventType, rule *models.Rule, actor services.Actor) {
	event := events.NewEvent(eventType, models.EntityTypeRule, rule.ID).
		WithActor(actor.ID, actor.Name).
		WithPayload("name", rule.Name).
		WithPayload("target_layer", string(rule.TargetLayer))
	if rule.TeamID != nil {
		event.WithTeam(*rule.TeamID)
	}
	s.dispatcher.Publish(event)
}

func (s *Service) validateInput(input CreateRuleInput) error {
	if input.Name == "" {
		return services.ErrEmptyRuleName
	}
	if input.Content == "" {
		return services.ErrEmptyContent
	}
	if !input.TargetLayer.Valid() {
		return services.NewDomainError(services.ErrorTypeValidation,
			"target layer must be organization, team or project", nil)
	}
	if !input.EnforcementMode.Valid() {
		return services.NewDomainError(services.ErrorTypeValidation,
			"enforcement mode must be block, temporary or warning", nil)
	}
	if input.EnforcementMode == models.EnforcementTemporary {
		if input.TemporaryTimeoutHours < 1 || input.TemporaryTimeoutHours > maxTimeoutHours {
			return services.ErrInvalidTimeout
		}
	}
	if input.Force && input.TeamID != nil {
		return services.NewDomainError(services.ErrorTypeValidation,
			"force applies only to global rules", nil)
	}
	if input.EffectiveStart != nil && input.EffectiveEnd != nil &&
		input.EffectiveEnd.Before(*input.EffectiveStart) {
		return services.NewDomainError(services.ErrorTypeValidation,
			"effective window end precedes start", nil)
	}
	for _, trigger := range input.Triggers {
		if err := validateTrigger(trigger); err != nil {
			return err
		}
	}
	return nil
}

func validateTrigger(t models.Trigger) error {
	switch t.Type {
	case models.TriggerTypePath:
		if t.Pattern == "" {
			return services.NewDomainError(services.ErrorTypeValidation,
				"path trigger requires a pattern", nil)
		}
	case models.TriggerTypeContext:
		if len(t.ContextTypes) == 0 {
			return services.NewDomainError(services.ErrorTypeValidation,
				"context trigger requires context types", nil)
		}
	case models.TriggerTypeTag:
		if len(t.Tags) == 0 {
			return services.NewDomainError(services.ErrorTypeValidation,
				"tag trigger requires tags", nil)
		}
	default:
		return services.NewDomainError(services.ErrorTypeValidation,
			"trigger type must be path, context or tag", nil)
	}
	return nil
}

func applyInput(rule *models.Rule, input CreateRuleInput) {
	rule.Description = input.Description
	rule.TargetLayer = input.TargetLayer
	rule.TeamID = input.TeamID
	rule.Force = input.Force
	rule.EnforcementMode = input.EnforcementMode
	rule.TemporaryTimeoutHours = input.TemporaryTimeoutHours
	rule.PriorityWeight = input.PriorityWeight
	rule.Overridable = input.Overridable
	rule.CategoryID = input.CategoryID
	rule.EffectiveStart = input.EffectiveStart
	rule.EffectiveEnd = input.EffectiveEnd
	rule.Triggers = input.Triggers
}
