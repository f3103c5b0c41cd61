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

// ExceptionRepository implements the repositories.ExceptionRepository interface
type ExceptionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewExceptionRepository creates a new exception repository
func NewExceptionRepository(db *DB, logger *zap.Logger) repositories.ExceptionRepository {
	return &ExceptionRepository{
		db:     db,
		logger: logger,
	}
}

const exceptionColumns = `id, change_request_id, team_id, requested_by, exception_type,
		justification, status, expires_at, resolved_by, resolved_at, created_at, updated_at`

// Create creates a new exception request
func (r *ExceptionRepository) Create(ctx context.Context, exc *models.ExceptionRequest) error {
	query := `
		INSERT INTO exception_requests (` + exceptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		exc.ID,
		exc.ChangeRequestID,
		exc.TeamID,
		exc.RequestedBy,
		exc.ExceptionType,
		exc.Justification,
		exc.Status,
		exc.ExpiresAt,
		exc.ResolvedBy,
		exc.ResolvedAt,
		exc.CreatedAt,
		exc.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create exception request: %w", err)
	}

	r.logger.Debug("exception request created",
		zap.String("id", exc.ID.String()),
		zap.String("change_request_id", exc.ChangeRequestID.String()))
	return nil
}

// GetByID retrieves an exception request by ID
func (r *ExceptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExceptionRequest, error) {
	query := `SELECT ` + exceptionColumns + ` FROM exception_requests WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	exc := &models.ExceptionRequest{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&exc.ID,
		&exc.ChangeRequestID,
		&exc.TeamID,
		&exc.RequestedBy,
		&exc.ExceptionType,
		&exc.Justification,
		&exc.Status,
		&exc.ExpiresAt,
		&exc.ResolvedBy,
		&exc.ResolvedAt,
		&exc.CreatedAt,
		&exc.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("exception request %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get exception request: %w", err)
	}

	return exc, nil
}

// List retrieves exception requests matching the filter
func (r *ExceptionRepository) List(ctx context.Context, filter repositories.ExceptionFilter) ([]*models.ExceptionRequest, error) {
	query := `SELECT ` + exceptionColumns + ` FROM exception_requests WHERE 1=1`
	args := []interface{}{}

	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if filter.ChangeRequestID != nil {
		args = append(args, *filter.ChangeRequestID)
		query += fmt.Sprintf(" AND change_request_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryExceptions(ctx, query, args...)
}

// ActiveForChangeRequest reports whether the change request already has an
// active exception: one that is pending, or approved and not yet expired.
func (r *ExceptionRepository) ActiveForChangeRequest(ctx context.Context, changeRequestID uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM exception_requests
			WHERE change_request_id = $1
				AND (status = $2 OR (status = $3 AND (expires_at IS NULL OR expires_at > $4)))
		)
	`

	executor := GetExecutor(ctx, r.db)
	var exists bool
	err := executor.QueryRowContext(ctx, query,
		changeRequestID,
		models.ExceptionPending,
		models.ExceptionApproved,
		now,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active exception: %w", err)
	}

	return exists, nil
}

// UpdateStatusFrom transitions the exception status with compare-and-set
// semantics, recording who resolved it and when.
func (r *ExceptionRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ExceptionStatus, resolvedBy *uuid.UUID, resolvedAt *time.Time) (bool, error) {
	query := `
		UPDATE exception_requests
		SET status = $3,
		    resolved_by = COALESCE($4, resolved_by),
		    resolved_at = COALESCE($5, resolved_at),
		    updated_at = $6
		WHERE id = $1 AND status = $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, from, to, resolvedBy, resolvedAt, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition exception status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	r.logger.Debug("exception status transitioned",
		zap.String("id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}

// ListExpired retrieves approved time-limited exceptions past their expiry
func (r *ExceptionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ExceptionRequest, error) {
	query := `
		SELECT ` + exceptionColumns + `
		FROM exception_requests
		WHERE status = $1
			AND expires_at IS NOT NULL
			AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`

	return r.queryExceptions(ctx, query, models.ExceptionApproved, now, limit)
}

// WithTx returns a new repository instance bound to the transaction
func (r *ExceptionRepository) WithTx(tx repositories.Transaction) repositories.ExceptionRepository {
	return &ExceptionRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryExceptions is a helper method to query multiple exception requests
func (r *ExceptionRepository) queryExceptions(ctx context.Context, query string, args ...interface{}) ([]*models.ExceptionRequest, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exception requests: %w", err)
	}
	defer rows.Close()

	var exceptions []*models.ExceptionRequest
	for rows.Next() {
		exc := &models.ExceptionRequest{}
		err := rows.Scan(
			&exc.ID,
			&exc.ChangeRequestID,
			&exc.TeamID,
			&exc.RequestedBy,
			&exc.ExceptionType,
			&exc.Justification,
			&exc.Status,
			&exc.ExpiresAt,
			&exc.ResolvedBy,
			&exc.ResolvedAt,
			&exc.CreatedAt,
			&exc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception request: %w", err)
		}
		exceptions = append(exceptions, exc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exception rows: %w", err)
	}

	return exceptions, nil
}
