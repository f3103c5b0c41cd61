package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"go.uber.org/zap"
)

// RuleRepository implements the repositories.RuleRepository interface
type RuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB, logger *zap.Logger) repositories.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

const ruleColumns = `id, name, description, content, target_layer, team_id, force, status,
		enforcement_mode, temporary_timeout_hours, priority_weight, overridable,
		category_id, effective_start, effective_end, triggers, created_by,
		submitted_at, created_at, updated_at`

// Create creates a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	triggers, err := marshalTriggers(rule.Triggers)
	if err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Content,
		rule.TargetLayer,
		rule.TeamID,
		rule.Force,
		rule.Status,
		rule.EnforcementMode,
		rule.TemporaryTimeoutHours,
		rule.PriorityWeight,
		rule.Overridable,
		rule.CategoryID,
		rule.EffectiveStart,
		rule.EffectiveEnd,
		triggers,
		rule.CreatedBy,
		rule.SubmittedAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	r.logger.Debug("rule created", zap.String("id", rule.ID.String()))
	return nil
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	rule, err := scanRule(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// ListByTeam retrieves all rules owned by a team
func (r *RuleRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE team_id = $1
		ORDER BY priority_weight DESC, created_at ASC
		LIMIT $2 OFFSET $3
	`

	return r.queryRules(ctx, query, teamID, limit, offset)
}

// ListCandidates retrieves the approved rules visible to a team:
// the team's own rules plus all global rules.
func (r *RuleRepository) ListCandidates(ctx context.Context, teamID uuid.UUID) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE status = $1
			AND (team_id = $2 OR team_id IS NULL)
		ORDER BY priority_weight DESC, created_at ASC
	`

	return r.queryRules(ctx, query, models.RuleStatusApproved, teamID)
}

// ListByStatus retrieves rules in a given lifecycle state
func (r *RuleRepository) ListByStatus(ctx context.Context, status models.RuleStatus, limit, offset int) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryRules(ctx, query, status, limit, offset)
}

// Update updates a rule's mutable fields
func (r *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	query := `
		UPDATE rules
		SET name = $2,
		    description = $3,
		    content = $4,
		    target_layer = $5,
		    enforcement_mode = $6,
		    temporary_timeout_hours = $7,
		    priority_weight = $8,
		    overridable = $9,
		    category_id = $10,
		    effective_start = $11,
		    effective_end = $12,
		    triggers = $13,
		    force = $14,
		    updated_at = $15
		WHERE id = $1
	`

	triggers, err := marshalTriggers(rule.Triggers)
	if err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Content,
		rule.TargetLayer,
		rule.EnforcementMode,
		rule.TemporaryTimeoutHours,
		rule.PriorityWeight,
		rule.Overridable,
		rule.CategoryID,
		rule.EffectiveStart,
		rule.EffectiveEnd,
		triggers,
		rule.Force,
		rule.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("rule updated", zap.String("id", rule.ID.String()))
	return nil
}

// UpdateStatusFrom transitions the rule status with compare-and-set semantics
func (r *RuleRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.RuleStatus, submittedAt *time.Time) (bool, error) {
	query := `
		UPDATE rules
		SET status = $3,
		    submitted_at = COALESCE($4, submitted_at),
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, from, to, submittedAt, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition rule status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	r.logger.Debug("rule status transitioned",
		zap.String("id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}

// Delete deletes a rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM rules WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("rule deleted", zap.String("id", id.String()))
	return nil
}

// DetachCategory clears the category reference on all rules pointing at the category
func (r *RuleRepository) DetachCategory(ctx context.Context, categoryID uuid.UUID) error {
	query := `UPDATE rules SET category_id = NULL, updated_at = $2 WHERE category_id = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, categoryID, time.Now()); err != nil {
		return fmt.Errorf("failed to detach category: %w", err)
	}

	r.logger.Debug("category detached from rules", zap.String("category_id", categoryID.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RuleRepository) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return &RuleRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryRules is a helper method to query multiple rules
func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.Rule, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return rules, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRule
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	rule := &models.Rule{}
	var triggers []byte

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Content,
		&rule.TargetLayer,
		&rule.TeamID,
		&rule.Force,
		&rule.Status,
		&rule.EnforcementMode,
		&rule.TemporaryTimeoutHours,
		&rule.PriorityWeight,
		&rule.Overridable,
		&rule.CategoryID,
		&rule.EffectiveStart,
		&rule.EffectiveEnd,
		&triggers,
		&rule.CreatedBy,
		&rule.SubmittedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &rule.Triggers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
		}
	}

	return rule, nil
}

func marshalTriggers(triggers []models.Trigger) ([]byte, error) {
	if triggers == nil {
		triggers = []models.Trigger{}
	}
	data, err := json.Marshal(triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal triggers: %w", err)
	}
	return data, nil
}
