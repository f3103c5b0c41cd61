package exception

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/enforcement"
	"github.com/ruleplane/backend/services/events"
	"go.uber.org/zap"
)

// Service runs the exception workflow. Granting an exception parks the
// parent change request in exception_granted; expiry of a time-limited
// exception re-arms enforcement according to the snapshotted mode.
type Service struct {
	exceptionRepo repositories.ExceptionRepository
	changeRepo    repositories.ChangeRequestRepository
	txManager     repositories.TransactionManager
	auditor       *audit.Service
	dispatcher    *events.Dispatcher
	metrics       enforcement.Metrics
	logger        *zap.Logger
	batchSize     int
}

// NewService creates a new exception Service
func NewService(
	exceptionRepo repositories.ExceptionRepository,
	changeRepo repositories.ChangeRequestRepository,
	txManager repositories.TransactionManager,
	auditor *audit.Service,
	dispatcher *events.Dispatcher,
	metrics enforcement.Metrics,
	logger *zap.Logger,
	batchSize int,
) *Service {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Service{
		exceptionRepo: exceptionRepo,
		changeRepo:    changeRepo,
		txManager:     txManager,
		auditor:       auditor,
		dispatcher:    dispatcher,
		metrics:       metrics,
		logger:        logger,
		batchSize:     batchSize,
	}
}

// FileInput carries the fields for a new exception request
type FileInput struct {
	ChangeRequestID uuid.UUID
	Justification   string
	ExceptionType   models.ExceptionType
	ExpiresAt       *time.Time
}

// File opens an exception request against a change request that is
// pending or already auto-reverted. A change request carries at most
// one active exception at a time.
func (s *Service) File(ctx context.Context, actor services.Actor, input FileInput) (*models.ExceptionRequest, error) {
	if input.Justification == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"justification is required", nil)
	}
	if !input.ExceptionType.Valid() {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"exception type must be time_limited or permanent", nil)
	}
	if input.ExceptionType == models.ExceptionTimeLimited {
		if input.ExpiresAt == nil || !input.ExpiresAt.After(time.Now()) {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				"time-limited exception requires a future expires_at", nil)
		}
	} else if input.ExpiresAt != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"permanent exception must not carry expires_at", nil)
	}

	cr, err := s.changeRepo.GetByID(ctx, input.ChangeRequestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrChangeRequestNotFound
		}
		return nil, services.WrapInternal("failed to get change request", err)
	}
	if cr.Status != models.ChangeRequestPending && cr.Status != models.ChangeRequestAutoReverted {
		return nil, services.NewDomainError(services.ErrorTypeInvalidState,
			"exceptions only apply to pending or auto-reverted change requests", nil).
			WithDetail("status", string(cr.Status))
	}

	var exc *models.ExceptionRequest
	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		active, err := s.exceptionRepo.ActiveForChangeRequest(txCtx, cr.ID, time.Now())
		if err != nil {
			return services.WrapInternal("failed to check active exceptions", err)
		}
		if active {
			return services.ErrDuplicateException
		}

		exc = models.NewExceptionRequest(cr.ID, cr.TeamID, actor.ID,
			input.Justification, input.ExceptionType, input.ExpiresAt)
		if err := s.exceptionRepo.Create(txCtx, exc); err != nil {
			return services.WrapInternal("failed to create exception request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeException, exc.ID, models.AuditActionExceptionFiled, actor.ID, actor.Name).
		WithMetadata(map[string]interface{}{
			"change_request_id": cr.ID.String(),
			"exception_type":    string(exc.ExceptionType),
		}))

	s.dispatcher.Publish(events.NewEvent(events.EventExceptionFiled, models.EntityTypeException, exc.ID).
		WithTeam(cr.TeamID).
		WithActor(actor.ID, actor.Name).
		WithPayload("change_request_id", cr.ID.String()).
		WithPayload("exception_type", string(exc.ExceptionType)))

	s.logger.Info("exception filed",
		zap.String("exception_id", exc.ID.String()),
		zap.String("change_request_id", cr.ID.String()),
		zap.String("actor", actor.Name))

	return exc, nil
}

// Get retrieves an exception request by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ExceptionRequest, error) {
	exc, err := s.exceptionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrExceptionNotFound
		}
		return nil, services.WrapInternal("failed to get exception request", err)
	}
	return exc, nil
}

// List retrieves exception requests matching the filter
func (s *Service) List(ctx context.Context, filter repositories.ExceptionFilter) ([]*models.ExceptionRequest, error) {
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	exceptions, err := s.exceptionRepo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list exception requests", err)
	}
	return exceptions, nil
}

// Approve grants a pending exception and parks the parent change
// request in exception_granted. The parent CAS clears timeout_at, which
// is what cancels an armed temporary deadline; no timer bookkeeping.
func (s *Service) Approve(ctx context.Context, actor services.Actor, id uuid.UUID, expiresAt *time.Time) (*models.ExceptionRequest, error) {
	exc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exc.Status != models.ExceptionPending {
		return nil, services.NewDomainError(services.ErrorTypeInvalidTransition,
			"exception can only be resolved from pending", nil).
			WithDetail("status", string(exc.Status))
	}

	if expiresAt != nil {
		if exc.ExceptionType == models.ExceptionPermanent {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				"permanent exception must not carry expires_at", nil)
		}
		if !expiresAt.After(time.Now()) {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				"expires_at must be in the future", nil)
		}
		exc.ExpiresAt = expiresAt
	}

	now := time.Now()
	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		ok, err := s.exceptionRepo.UpdateStatusFrom(txCtx, id,
			models.ExceptionPending, models.ExceptionApproved, &actor.ID, &now)
		if err != nil {
			return services.WrapInternal("failed to approve exception", err)
		}
		if !ok {
			return services.ErrInvalidTransition
		}

		// The parent may sit in pending or auto_reverted; try both.
		granted, err := s.changeRepo.UpdateStatusFrom(txCtx, exc.ChangeRequestID,
			models.ChangeRequestPending, models.ChangeRequestExceptionGranted, nil)
		if err != nil {
			return services.WrapInternal("failed to grant exception on change request", err)
		}
		if !granted {
			granted, err = s.changeRepo.UpdateStatusFrom(txCtx, exc.ChangeRequestID,
				models.ChangeRequestAutoReverted, models.ChangeRequestExceptionGranted, nil)
			if err != nil {
				return services.WrapInternal("failed to grant exception on change request", err)
			}
		}
		if !granted {
			return services.NewDomainError(services.ErrorTypeInvalidState,
				"change request already settled, exception cannot be granted", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	exc.Status = models.ExceptionApproved
	exc.ResolvedBy = &actor.ID
	exc.ResolvedAt = &now

	s.auditor.RecordTransition(models.EntityTypeException, id, models.AuditActionExceptionGrant, actor,
		string(models.ExceptionPending), string(models.ExceptionApproved))
	s.auditor.RecordTransition(models.EntityTypeChangeRequest, exc.ChangeRequestID,
		models.AuditActionExceptionGrant, actor, "", string(models.ChangeRequestExceptionGranted))

	event := events.NewEvent(events.EventExceptionGranted, models.EntityTypeException, id).
		WithTeam(exc.TeamID).
		WithActor(actor.ID, actor.Name).
		WithPayload("change_request_id", exc.ChangeRequestID.String())
	if exc.ExpiresAt != nil {
		event.WithPayload("expires_at", exc.ExpiresAt.Format(time.RFC3339))
	}
	s.dispatcher.Publish(event)

	s.logger.Info("exception granted",
		zap.String("exception_id", id.String()),
		zap.String("change_request_id", exc.ChangeRequestID.String()),
		zap.String("actor", actor.Name))

	return exc, nil
}

// Deny refuses a pending exception. The parent change request keeps its
// current state and any armed deadline.
func (s *Service) Deny(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ExceptionRequest, error) {
	exc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exc.Status != models.ExceptionPending {
		return nil, services.NewDomainError(services.ErrorTypeInvalidTransition,
			"exception can only be resolved from pending", nil).
			WithDetail("status", string(exc.Status))
	}

	now := time.Now()
	ok, err := s.exceptionRepo.UpdateStatusFrom(ctx, id,
		models.ExceptionPending, models.ExceptionDenied, &actor.ID, &now)
	if err != nil {
		return nil, services.WrapInternal("failed to deny exception", err)
	}
	if !ok {
		return nil, services.ErrInvalidTransition
	}

	exc.Status = models.ExceptionDenied
	exc.ResolvedBy = &actor.ID
	exc.ResolvedAt = &now

	s.auditor.RecordTransition(models.EntityTypeException, id, models.AuditActionExceptionDenied, actor,
		string(models.ExceptionPending), string(models.ExceptionDenied))

	s.dispatcher.Publish(events.NewEvent(events.EventExceptionDenied, models.EntityTypeException, id).
		WithTeam(exc.TeamID).
		WithActor(actor.ID, actor.Name).
		WithPayload("change_request_id", exc.ChangeRequestID.String()))

	return exc, nil
}

// SweepExpired expires approved time-limited exceptions past their
// deadline and re-arms enforcement on the parent change request:
// temporary mode returns to pending with a fresh timeout window, block
// mode goes straight to auto_reverted with a revert instruction, and
// warning mode returns to pending with no deadline.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.exceptionRepo.ListExpired(ctx, now, s.batchSize)
	if err != nil {
		return 0, services.WrapInternal("failed to list expired exceptions", err)
	}

	processed := 0
	for _, exc := range expired {
		if err := s.expireOne(ctx, exc, now); err != nil {
			s.logger.Error("failed to expire exception",
				zap.String("exception_id", exc.ID.String()),
				zap.Error(err))
			continue
		}
		processed++
	}

	if len(expired) > 0 {
		s.logger.Info("exception sweep completed",
			zap.Int("expired", len(expired)),
			zap.Int("processed", processed))
	}

	return processed, nil
}

func (s *Service) expireOne(ctx context.Context, exc *models.ExceptionRequest, now time.Time) error {
	var rearmedTo models.ChangeRequestStatus

	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		ok, err := s.exceptionRepo.UpdateStatusFrom(txCtx, exc.ID,
			models.ExceptionApproved, models.ExceptionStatusExpired, nil, nil)
		if err != nil {
			return err
		}
		if !ok {
			// Another sweep already expired it.
			return services.ErrAlreadyTerminal
		}

		cr, err := s.changeRepo.GetByID(txCtx, exc.ChangeRequestID)
		if err != nil {
			return err
		}
		if cr.Status != models.ChangeRequestExceptionGranted {
			// The parent moved on while the exception was active;
			// nothing to re-arm.
			return nil
		}

		var timeoutAt *time.Time
		switch cr.EnforcementMode {
		case models.EnforcementBlock:
			rearmedTo = models.ChangeRequestAutoReverted
		case models.EnforcementTemporary:
			rearmedTo = models.ChangeRequestPending
			timeoutAt = cr.FreshTimeout(now)
		default:
			rearmedTo = models.ChangeRequestPending
		}

		ok, err = s.changeRepo.UpdateStatusFrom(txCtx, cr.ID,
			models.ChangeRequestExceptionGranted, rearmedTo, timeoutAt)
		if err != nil {
			return err
		}
		if !ok {
			rearmedTo = ""
		}
		return nil
	})
	if err != nil {
		if services.IsAlreadyTerminalError(err) {
			s.logger.Debug("exception already expired",
				zap.String("exception_id", exc.ID.String()))
			return nil
		}
		return err
	}

	s.auditor.RecordTransition(models.EntityTypeException, exc.ID,
		models.AuditActionExceptionExpire, services.SystemActor,
		string(models.ExceptionApproved), string(models.ExceptionStatusExpired))

	event := events.NewEvent(events.EventExceptionExpired, models.EntityTypeException, exc.ID).
		WithTeam(exc.TeamID).
		WithActor(services.SystemActor.ID, services.SystemActor.Name).
		WithPayload("change_request_id", exc.ChangeRequestID.String())
	s.dispatcher.Publish(event)

	if rearmedTo != "" {
		s.auditor.RecordTransition(models.EntityTypeChangeRequest, exc.ChangeRequestID,
			models.AuditActionExceptionExpire, services.SystemActor,
			string(models.ChangeRequestExceptionGranted), string(rearmedTo))

		if rearmedTo == models.ChangeRequestAutoReverted {
			s.dispatcher.Publish(events.NewEvent(events.EventChangeAutoReverted, models.EntityTypeChangeRequest, exc.ChangeRequestID).
				WithTeam(exc.TeamID).
				WithActor(services.SystemActor.ID, services.SystemActor.Name).
				WithPayload("revert", true))
		}
	}

	return nil
}
