package team

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

// Service manages team settings. The only governance-relevant setting
// is inherit_global_rules, which resolveEffective consults.
type Service struct {
	teamRepo   repositories.TeamRepository
	auditor    *audit.Service
	dispatcher *events.Dispatcher
	logger     *zap.Logger
}

// NewService creates a new team Service
func NewService(teamRepo repositories.TeamRepository, auditor *audit.Service, dispatcher *events.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		teamRepo:   teamRepo,
		auditor:    auditor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Create creates a new team that inherits global rules by default
func (s *Service) Create(ctx context.Context, actor services.Actor, name string) (*models.Team, error) {
	if name == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"team name cannot be empty", nil)
	}

	team := models.NewTeam(name)
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, services.WrapInternal("failed to create team", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeTeam, team.ID, models.AuditActionCreated, actor.ID, actor.Name))
	s.dispatcher.Publish(events.NewEvent(events.EventTeamCreated, models.EntityTypeTeam, team.ID).
		WithTeam(team.ID).
		WithActor(actor.ID, actor.Name).
		WithPayload("name", team.Name))
	return team, nil
}

// Get retrieves a team by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTeamNotFound
		}
		return nil, services.WrapInternal("failed to get team", err)
	}
	return team, nil
}

// List retrieves all teams with pagination
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.Team, error) {
	if limit < 1 {
		limit = 50
	}
	teams, err := s.teamRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list teams", err)
	}
	return teams, nil
}

// SetInheritGlobalRules flips the team's global-rule inheritance.
// Forced global rules apply regardless of this setting.
func (s *Service) SetInheritGlobalRules(ctx context.Context, actor services.Actor, id uuid.UUID, inherit bool) (*models.Team, error) {
	team, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if team.InheritGlobalRules == inherit {
		return team, nil
	}

	before := team.InheritGlobalRules
	team.InheritGlobalRules = inherit
	if err := s.teamRepo.Update(ctx, team); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTeamNotFound
		}
		return nil, services.WrapInternal("failed to update team", err)
	}

	s.auditor.Record(models.NewAuditEntry(models.EntityTypeTeam, id, models.AuditActionUpdated, actor.ID, actor.Name).
		WithChanges(map[string]models.FieldChange{
			"inherit_global_rules": {
				Old: boolString(before),
				New: boolString(inherit),
			},
		}))
	s.dispatcher.Publish(events.NewEvent(events.EventTeamUpdated, models.EntityTypeTeam, id).
		WithTeam(id).
		WithActor(actor.ID, actor.Name).
		WithPayload("inherit_global_rules", inherit))

	s.logger.Info("team inheritance updated",
		zap.String("team_id", id.String()),
		zap.Bool("inherit_global_rules", inherit),
		zap.String("actor", actor.Name))

	return team, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
