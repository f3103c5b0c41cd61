package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"go.uber.org/zap"
)

// TeamRepository implements the repositories.TeamRepository interface
type TeamRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *DB, logger *zap.Logger) repositories.TeamRepository {
	return &TeamRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new team
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (id, name, inherit_global_rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		team.ID,
		team.Name,
		team.InheritGlobalRules,
		team.CreatedAt,
		team.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	r.logger.Debug("team created", zap.String("id", team.ID.String()), zap.String("name", team.Name))
	return nil
}

// GetByID retrieves a team by ID
func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	query := `
		SELECT id, name, inherit_global_rules, created_at, updated_at
		FROM teams WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	team := &models.Team{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.InheritGlobalRules,
		&team.CreatedAt,
		&team.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("team %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return team, nil
}

// List retrieves all teams with pagination
func (r *TeamRepository) List(ctx context.Context, limit, offset int) ([]*models.Team, error) {
	query := `
		SELECT id, name, inherit_global_rules, created_at, updated_at
		FROM teams
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		team := &models.Team{}
		err := rows.Scan(
			&team.ID,
			&team.Name,
			&team.InheritGlobalRules,
			&team.CreatedAt,
			&team.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team rows: %w", err)
	}

	return teams, nil
}

// Update updates a team
func (r *TeamRepository) Update(ctx context.Context, team *models.Team) error {
	query := `
		UPDATE teams
		SET name = $2, inherit_global_rules = $3, updated_at = $4
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		team.ID,
		team.Name,
		team.InheritGlobalRules,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("team %s: %w", team.ID, repositories.ErrNotFound)
	}

	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *TeamRepository) WithTx(tx repositories.Transaction) repositories.TeamRepository {
	return &TeamRepository{
		db:     r.db,
		logger: r.logger,
	}
}
