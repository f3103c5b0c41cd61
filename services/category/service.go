package category

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/events"
	"go.uber.org/zap"
)

// Service manages rule categories. Categories are pure classification
// data; deleting one detaches referencing rules and never cascades.
type Service struct {
	categoryRepo repositories.CategoryRepository
	ruleRepo     repositories.RuleRepository
	txManager    repositories.TransactionManager
	auditor      *audit.Service
	dispatcher   *events.Dispatcher
	logger       *zap.Logger
}

// NewService creates a new category Service
func NewService(
	categoryRepo repositories.CategoryRepository,
	ruleRepo repositories.RuleRepository,
	txManager repositories.TransactionManager,
	auditor *audit.Service,
	dispatcher *events.Dispatcher,
	logger *zap.Logger,
) *Service {
	return &Service{
		categoryRepo: categoryRepo,
		ruleRepo:     ruleRepo,
		txManager:    txManager,
		auditor:      auditor,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Create creates a new category
func (s *Service) Create(ctx context.Context, actor services.Actor, name, description string) (*models.Category, error) {
	if name == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"category name cannot be empty", nil)
	}

	category := models.NewCategory(name, description)
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, services.WrapInternal("failed to create category", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeCategory, category.ID, models.AuditActionCreated, actor.ID, actor.Name))
	s.dispatcher.Publish(events.NewEvent(events.EventCategoryCreated, models.EntityTypeCategory, category.ID).
		WithActor(actor.ID, actor.Name).
		WithPayload("name", category.Name))
	return category, nil
}

// Get retrieves a category by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrCategoryNotFound
		}
		return nil, services.WrapInternal("failed to get category", err)
	}
	return category, nil
}

// List retrieves all categories
func (s *Service) List(ctx context.Context) ([]*models.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list categories", err)
	}
	return categories, nil
}

// Delete removes a category, detaching every rule that references it.
func (s *Service) Delete(ctx context.Context, actor services.Actor, id uuid.UUID) error {
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		if err := s.ruleRepo.DetachCategory(txCtx, id); err != nil {
			return services.WrapInternal("failed to detach category from rules", err)
		}
		if err := s.categoryRepo.Delete(txCtx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrCategoryNotFound
			}
			return services.WrapInternal("failed to delete category", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeCategory, id, models.AuditActionDeleted, actor.ID, actor.Name))
	s.dispatcher.Publish(events.NewEvent(events.EventCategoryDeleted, models.EntityTypeCategory, id).
		WithActor(actor.ID, actor.Name))
	s.logger.Info("category deleted",
		zap.String("category_id", id.String()),
		zap.String("actor", actor.Name))
	return nil
}
