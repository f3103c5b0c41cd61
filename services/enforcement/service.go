package enforcement

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

// Metrics counts enforcement outcomes. The observability package
// provides the Prometheus implementation; tests pass nil for a no-op.
type Metrics interface {
	TransitionApplied(entityType, outcome string)
	TransitionLost(entityType string)
	SweepCompleted(duration time.Duration, reverted int)
}

type noopMetrics struct{}

func (noopMetrics) TransitionApplied(string, string) {}

func (noopMetrics) TransitionLost(string) {}

func (noopMetrics) SweepCompleted(time.Duration, int) {}

// Service drives the change-request state machine. Every transition is
// compare-and-set on the stored status, so a user action racing the
// sweeper (or another user) resolves to exactly one winner; the loser
// observes the row already out of pending.
type Service struct {
	changeRepo repositories.ChangeRequestRepository
	ruleRepo   repositories.RuleRepository
	auditor    *audit.Service
	dispatcher *events.Dispatcher
	metrics    Metrics
	logger     *zap.Logger
	batchSize  int
}

// NewService creates a new enforcement Service
func NewService(
	changeRepo repositories.ChangeRequestRepository,
	ruleRepo repositories.RuleRepository,
	auditor *audit.Service,
	dispatcher *events.Dispatcher,
	metrics Metrics,
	logger *zap.Logger,
	batchSize int,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &Service{
		changeRepo: changeRepo,
		ruleRepo:   ruleRepo,
		auditor:    auditor,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// DetectionInput is what the external detector reports for one
// out-of-band file modification.
type DetectionInput struct {
	TeamID       uuid.UUID
	RuleID       uuid.UUID
	FilePath     string
	OriginalHash string
	ModifiedHash string
	DiffContent  string
}

// CreateFromDetection opens a change request for a detected violation,
// snapshotting the governing rule's enforcement mode and timeout window
// so later rule edits never change how this request is handled.
func (s *Service) CreateFromDetection(ctx context.Context, input DetectionInput) (*models.ChangeRequest, error) {
	if input.FilePath == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"file path is required", nil)
	}

	rule, err := s.ruleRepo.GetByID(ctx, input.RuleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapInternal("failed to get rule", err)
	}
	if rule.Status != models.RuleStatusApproved {
		return nil, services.NewDomainError(services.ErrorTypeInvalidState,
			"change requests only attach to approved rules", nil).
			WithDetail("rule_status", string(rule.Status))
	}

	cr := models.NewChangeRequest(input.TeamID, rule, input.FilePath,
		input.OriginalHash, input.ModifiedHash, input.DiffContent)

	if err := s.changeRepo.Create(ctx, cr); err != nil {
		return nil, services.WrapInternal("failed to create change request", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeChangeRequest, cr.ID, models.AuditActionCreated, services.SystemActor.ID, services.SystemActor.Name).
		WithMetadata(map[string]interface{}{
			"rule_id":          cr.RuleID.String(),
			"file_path":        cr.FilePath,
			"enforcement_mode": string(cr.EnforcementMode),
		}))

	event := events.NewEvent(events.EventChangeDetected, models.EntityTypeChangeRequest, cr.ID).
		WithTeam(cr.TeamID).
		WithActor(services.SystemActor.ID, services.SystemActor.Name).
		WithPayload("rule_id", cr.RuleID.String()).
		WithPayload("file_path", cr.FilePath).
		WithPayload("enforcement_mode", string(cr.EnforcementMode))
	if cr.TimeoutAt != nil {
		event.WithPayload("timeout_at", cr.TimeoutAt.Format(time.RFC3339))
	}
	s.dispatcher.Publish(event)

	s.logger.Info("change request created",
		zap.String("change_request_id", cr.ID.String()),
		zap.String("rule_id", cr.RuleID.String()),
		zap.String("mode", string(cr.EnforcementMode)))

	return cr, nil
}

// Get retrieves a change request by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	cr, err := s.changeRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrChangeRequestNotFound
		}
		return nil, services.WrapInternal("failed to get change request", err)
	}
	return cr, nil
}

// List retrieves change requests matching the filter
func (s *Service) List(ctx context.Context, filter repositories.ChangeRequestFilter) ([]*models.ChangeRequest, error) {
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	requests, err := s.changeRepo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list change requests", err)
	}
	return requests, nil
}

// Approve accepts a pending change. The CAS clears timeout_at, so a
// still-armed temporary deadline can never fire afterwards.
func (s *Service) Approve(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.userTransition(ctx, actor, id, models.ChangeRequestApproved,
		models.AuditActionApproved, events.EventChangeApproved)
}

// Reject refuses a pending change and instructs the detector to revert it.
func (s *Service) Reject(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.userTransition(ctx, actor, id, models.ChangeRequestRejected,
		models.AuditActionRejected, events.EventChangeRejected)
}

func (s *Service) userTransition(ctx context.Context, actor services.Actor, id uuid.UUID, to models.ChangeRequestStatus, action models.AuditAction, eventType events.EventType) (*models.ChangeRequest, error) {
	cr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != models.ChangeRequestPending {
		return nil, services.NewDomainError(services.ErrorTypeInvalidTransition,
			"change request can only be decided from pending", nil).
			WithDetail("status", string(cr.Status))
	}

	ok, err := s.changeRepo.UpdateStatusFrom(ctx, id, models.ChangeRequestPending, to, nil)
	if err != nil {
		return nil, services.WrapInternal("failed to transition change request", err)
	}
	if !ok {
		// Lost the race against the sweeper or another admin.
		s.metrics.TransitionLost(models.EntityTypeChangeRequest)
		return nil, services.ErrInvalidTransition
	}
	s.metrics.TransitionApplied(models.EntityTypeChangeRequest, string(to))

	cr.Status = to
	cr.TimeoutAt = nil

	s.auditor.RecordTransition(models.EntityTypeChangeRequest, id, action, actor,
		string(models.ChangeRequestPending), string(to))

	event := events.NewEvent(eventType, models.EntityTypeChangeRequest, id).
		WithTeam(cr.TeamID).
		WithActor(actor.ID, actor.Name).
		WithPayload("file_path", cr.FilePath)
	if to == models.ChangeRequestRejected {
		event.WithPayload("revert", true)
	}
	s.dispatcher.Publish(event)

	s.logger.Info("change request decided",
		zap.String("change_request_id", id.String()),
		zap.String("status", string(to)),
		zap.String("actor", actor.Name))

	return cr, nil
}

// Sweep transitions every pending temporary request past its persisted
// deadline to auto_reverted and emits revert instructions. Losing the
// CAS is the expected outcome when a user decided between the read and
// the write; it is logged at debug and never surfaced.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()

	expired, err := s.changeRepo.ListExpired(ctx, now, s.batchSize)
	if err != nil {
		return 0, services.WrapInternal("failed to list expired change requests", err)
	}

	reverted := 0
	for _, cr := range expired {
		ok, err := s.changeRepo.UpdateStatusFrom(ctx, cr.ID,
			models.ChangeRequestPending, models.ChangeRequestAutoReverted, nil)
		if err != nil {
			s.logger.Error("failed to auto-revert change request",
				zap.String("change_request_id", cr.ID.String()),
				zap.Error(err))
			continue
		}
		if !ok {
			s.metrics.TransitionLost(models.EntityTypeChangeRequest)
			s.logger.Debug("auto-revert skipped, request already settled",
				zap.String("change_request_id", cr.ID.String()))
			continue
		}

		reverted++
		s.metrics.TransitionApplied(models.EntityTypeChangeRequest, string(models.ChangeRequestAutoReverted))

		s.auditor.RecordTransition(models.EntityTypeChangeRequest, cr.ID,
			models.AuditActionAutoReverted, services.SystemActor,
			string(models.ChangeRequestPending), string(models.ChangeRequestAutoReverted))

		s.dispatcher.Publish(events.NewEvent(events.EventChangeAutoReverted, models.EntityTypeChangeRequest, cr.ID).
			WithTeam(cr.TeamID).
			WithActor(services.SystemActor.ID, services.SystemActor.Name).
			WithPayload("file_path", cr.FilePath).
			WithPayload("revert", true))
	}

	s.metrics.SweepCompleted(time.Since(start), reverted)

	if len(expired) > 0 {
		s.logger.Info("enforcement sweep completed",
			zap.Int("expired", len(expired)),
			zap.Int("reverted", reverted))
	}

	return reverted, nil
}
