package approval

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/config"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/events"
	"go.uber.org/zap"
)

// Service runs the rule approval quorum. Decisions are append-only
// records; the quorum state is derived from the full record set on
// every read, so recomputation is idempotent and order-insensitive.
type Service struct {
	ruleRepo     repositories.RuleRepository
	approvalRepo repositories.ApprovalRepository
	txManager    repositories.TransactionManager
	quorum       config.QuorumConfig
	auditor      *audit.Service
	dispatcher   *events.Dispatcher
	logger       *zap.Logger
}

// NewService creates a new approval Service
func NewService(
	ruleRepo repositories.RuleRepository,
	approvalRepo repositories.ApprovalRepository,
	txManager repositories.TransactionManager,
	quorum config.QuorumConfig,
	auditor *audit.Service,
	dispatcher *events.Dispatcher,
	logger *zap.Logger,
) *Service {
	return &Service{
		ruleRepo:     ruleRepo,
		approvalRepo: approvalRepo,
		txManager:    txManager,
		quorum:       quorum,
		auditor:      auditor,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// RecordDecision records one approver's verdict on a pending rule and
// applies the resulting lifecycle transition. The first rejection wins
// immediately; approvals accumulate until the per-layer quorum.
func (s *Service) RecordDecision(ctx context.Context, actor services.Actor, ruleID uuid.UUID, decision models.Decision, comment string) (*models.ApprovalStatus, error) {
	if !decision.Valid() {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"decision must be approved or rejected", nil)
	}
	if decision == models.DecisionRejected && comment == "" {
		return nil, services.ErrMissingComment
	}

	rule, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapInternal("failed to get rule", err)
	}
	if rule.Status != models.RuleStatusPending {
		return nil, services.NewDomainError(services.ErrorTypeInvalidState,
			"decisions are only accepted on pending rules", nil).
			WithDetail("status", string(rule.Status))
	}

	required := s.quorum.RequiredFor(string(rule.TargetLayer))

	var status *models.ApprovalStatus
	var outcome models.RuleStatus

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		exists, err := s.approvalRepo.ExistsForUser(txCtx, ruleID, actor.ID)
		if err != nil {
			return services.WrapInternal("failed to check existing decision", err)
		}
		if exists {
			return services.ErrDuplicateApproval
		}

		record := models.NewApprovalRecord(ruleID, actor.ID, decision, comment)
		if err := s.approvalRepo.Insert(txCtx, record); err != nil {
			return services.WrapInternal("failed to record decision", err)
		}

		records, err := s.approvalRepo.GetByRule(txCtx, ruleID)
		if err != nil {
			return services.WrapInternal("failed to load decision history", err)
		}

		status = models.DeriveApprovalStatus(ruleID, required, records)

		switch {
		case status.Rejected:
			outcome = models.RuleStatusRejected
		case status.QuorumReached():
			outcome = models.RuleStatusApproved
		default:
			return nil
		}

		ok, err := s.ruleRepo.UpdateStatusFrom(txCtx, ruleID, models.RuleStatusPending, outcome, nil)
		if err != nil {
			return services.WrapInternal("failed to transition rule", err)
		}
		if !ok {
			// A concurrent decision already settled the rule.
			return services.ErrAlreadyTerminal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// One audit entry and one event per accepted decision; a settling
	// decision carries the status transition on the same entry.
	metadata := map[string]interface{}{
		"decision":       string(decision),
		"comment":        comment,
		"current_count":  status.CurrentCount,
		"required_count": status.RequiredCount,
	}
	if outcome != "" {
		s.auditor.Record(models.NewAuditEntry(models.EntityTypeRule, ruleID, outcomeAction(outcome), actor.ID, actor.Name).
			WithChanges(map[string]models.FieldChange{
				"status": {Old: string(models.RuleStatusPending), New: string(outcome)},
			}).
			WithMetadata(metadata))
		s.publishOutcome(rule, outcome, actor)
	} else {
		s.auditor.Record(models.NewAuditEntry(models.EntityTypeRule, ruleID, decisionAction(decision), actor.ID, actor.Name).
			WithMetadata(metadata))
		s.publishDecision(rule, decision, status, actor)
	}

	s.logger.Info("decision recorded",
		zap.String("rule_id", ruleID.String()),
		zap.String("decision", string(decision)),
		zap.String("actor", actor.Name),
		zap.Int("current_count", status.CurrentCount),
		zap.Int("required_count", status.RequiredCount))

	return status, nil
}

// Status derives the current quorum state of a rule from its full
// decision history.
func (s *Service) Status(ctx context.Context, ruleID uuid.UUID) (*models.ApprovalStatus, error) {
	rule, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapInternal("failed to get rule", err)
	}

	records, err := s.approvalRepo.GetByRule(ctx, ruleID)
	if err != nil {
		return nil, services.WrapInternal("failed to load decision history", err)
	}

	required := s.quorum.RequiredFor(string(rule.TargetLayer))
	return models.DeriveApprovalStatus(ruleID, required, records), nil
}

func (s *Service) publishOutcome(rule *models.Rule, outcome models.RuleStatus, actor services.Actor) {
	eventType := events.EventRuleApproved
	if outcome == models.RuleStatusRejected {
		eventType = events.EventRuleRejected
	}

	event := events.NewEvent(eventType, models.EntityTypeRule, rule.ID).
		WithActor(actor.ID, actor.Name).
		WithPayload("name", rule.Name).
		WithPayload("target_layer", string(rule.TargetLayer))
	if rule.TeamID != nil {
		event.WithTeam(*rule.TeamID)
	}
	s.dispatcher.Publish(event)
}

func (s *Service) publishDecision(rule *models.Rule, decision models.Decision, status *models.ApprovalStatus, actor services.Actor) {
	event := events.NewEvent(events.EventDecisionRecorded, models.EntityTypeRule, rule.ID).
		WithActor(actor.ID, actor.Name).
		WithPayload("decision", string(decision)).
		WithPayload("current_count", status.CurrentCount).
		WithPayload("required_count", status.RequiredCount)
	if rule.TeamID != nil {
		event.WithTeam(*rule.TeamID)
	}
	s.dispatcher.Publish(event)
}

func decisionAction(d models.Decision) models.AuditAction {
	if d == models.DecisionRejected {
		return models.AuditActionRejected
	}
	return models.AuditActionApproved
}

func outcomeAction(outcome models.RuleStatus) models.AuditAction {
	if outcome == models.RuleStatusRejected {
		return models.AuditActionRejected
	}
	return models.AuditActionApproved
}
