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

// ChangeRequestRepository implements the repositories.ChangeRequestRepository interface
type ChangeRequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChangeRequestRepository creates a new change request repository
func NewChangeRequestRepository(db *DB, logger *zap.Logger) repositories.ChangeRequestRepository {
	return &ChangeRequestRepository{
		db:     db,
		logger: logger,
	}
}

const changeRequestColumns = `id, team_id, rule_id, file_path, original_hash, modified_hash,
		diff_content, enforcement_mode, temporary_timeout_hours, status, timeout_at,
		created_at, updated_at`

// Create creates a new change request
func (r *ChangeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	query := `
		INSERT INTO change_requests (` + changeRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		cr.ID,
		cr.TeamID,
		cr.RuleID,
		cr.FilePath,
		cr.OriginalHash,
		cr.ModifiedHash,
		cr.DiffContent,
		cr.EnforcementMode,
		cr.TemporaryTimeoutHours,
		cr.Status,
		cr.TimeoutAt,
		cr.CreatedAt,
		cr.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create change request: %w", err)
	}

	r.logger.Debug("change request created",
		zap.String("id", cr.ID.String()),
		zap.String("mode", string(cr.EnforcementMode)))
	return nil
}

// GetByID retrieves a change request by ID
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	cr := &models.ChangeRequest{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&cr.ID,
		&cr.TeamID,
		&cr.RuleID,
		&cr.FilePath,
		&cr.OriginalHash,
		&cr.ModifiedHash,
		&cr.DiffContent,
		&cr.EnforcementMode,
		&cr.TemporaryTimeoutHours,
		&cr.Status,
		&cr.TimeoutAt,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("change request %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get change request: %w", err)
	}

	return cr, nil
}

// List retrieves change requests matching the filter
func (r *ChangeRequestRepository) List(ctx context.Context, filter repositories.ChangeRequestFilter) ([]*models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE 1=1`
	args := []interface{}{}

	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryChangeRequests(ctx, query, args...)
}

// UpdateStatusFrom transitions the status with compare-and-set semantics.
// timeout_at is overwritten with the given deadline; nil clears it so a
// cancelled auto-revert leaves no stale deadline behind.
func (r *ChangeRequestRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ChangeRequestStatus, timeoutAt *time.Time) (bool, error) {
	query := `
		UPDATE change_requests
		SET status = $3,
		    timeout_at = $4,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, from, to, timeoutAt, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition change request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	r.logger.Debug("change request status transitioned",
		zap.String("id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}

// ListExpired retrieves pending temporary requests whose deadline has passed
func (r *ChangeRequestRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ChangeRequest, error) {
	query := `
		SELECT ` + changeRequestColumns + `
		FROM change_requests
		WHERE status = $1
			AND timeout_at IS NOT NULL
			AND timeout_at <= $2
		ORDER BY timeout_at ASC
		LIMIT $3
	`

	return r.queryChangeRequests(ctx, query, models.ChangeRequestPending, now, limit)
}

// WithTx returns a new repository instance bound to the transaction
func (r *ChangeRequestRepository) WithTx(tx repositories.Transaction) repositories.ChangeRequestRepository {
	return &ChangeRequestRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryChangeRequests is a helper method to query multiple change requests
func (r *ChangeRequestRepository) queryChangeRequests(ctx context.Context, query string, args ...interface{}) ([]*models.ChangeRequest, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ChangeRequest
	for rows.Next() {
		cr := &models.ChangeRequest{}
		err := rows.Scan(
			&cr.ID,
			&cr.TeamID,
			&cr.RuleID,
			&cr.FilePath,
			&cr.OriginalHash,
			&cr.ModifiedHash,
			&cr.DiffContent,
			&cr.EnforcementMode,
			&cr.TemporaryTimeoutHours,
			&cr.Status,
			&cr.TimeoutAt,
			&cr.CreatedAt,
			&cr.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change request: %w", err)
		}
		requests = append(requests, cr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change request rows: %w", err)
	}

	return requests, nil
}
