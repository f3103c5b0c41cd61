package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"go.uber.org/zap"
)

// ApprovalRepository implements the repositories.ApprovalRepository interface
type ApprovalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *DB, logger *zap.Logger) repositories.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a new approval record. The (rule_id, user_id) unique
// constraint backs the duplicate-decision guard under concurrency.
func (r *ApprovalRepository) Insert(ctx context.Context, record *models.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (id, rule_id, user_id, decision, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		record.ID,
		record.RuleID,
		record.UserID,
		record.Decision,
		record.Comment,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert approval record: %w", err)
	}

	r.logger.Debug("approval record inserted",
		zap.String("id", record.ID.String()),
		zap.String("rule_id", record.RuleID.String()),
		zap.String("decision", string(record.Decision)))
	return nil
}

// GetByRule retrieves all decisions recorded for a rule
func (r *ApprovalRepository) GetByRule(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRecord, error) {
	query := `
		SELECT id, rule_id, user_id, decision, comment, created_at
		FROM approval_records
		WHERE rule_id = $1
		ORDER BY created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval records: %w", err)
	}
	defer rows.Close()

	var records []*models.ApprovalRecord
	for rows.Next() {
		record := &models.ApprovalRecord{}
		err := rows.Scan(
			&record.ID,
			&record.RuleID,
			&record.UserID,
			&record.Decision,
			&record.Comment,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval record rows: %w", err)
	}

	return records, nil
}

// ExistsForUser reports whether the user already decided on the rule
func (r *ApprovalRepository) ExistsForUser(ctx context.Context, ruleID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM approval_records WHERE rule_id = $1 AND user_id = $2)`

	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, ruleID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check approval existence: %w", err)
	}

	return exists, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *ApprovalRepository) WithTx(tx repositories.Transaction) repositories.ApprovalRepository {
	return &ApprovalRepository{
		db:     r.db,
		logger: r.logger,
	}
}
