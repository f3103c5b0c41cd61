package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `id, entity_type, entity_id, action, actor_id, actor_name,
		changes, metadata, created_at`

// Insert appends a new audit entry. Entries are never updated or deleted.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO audit_entries (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		entry.ActorName,
		changes,
		[]byte(metadata),
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetByID retrieves an audit entry by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	entry, err := scanAuditEntry(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("audit entry %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	return entry, nil
}

// List retrieves audit entries matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE 1=1`
	args := []interface{}{}

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryAuditEntries(ctx, query, args...)
}

// ListByEntity retrieves the ordered history for one entity, oldest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`

	return r.queryAuditEntries(ctx, query, entityType, entityID)
}

// WithTx returns a new repository instance bound to the transaction
func (r *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return &AuditRepository{
		db:     r.db,
		logger: r.logger,
	}
}

// queryAuditEntries is a helper method to query multiple audit entries
func (r *AuditRepository) queryAuditEntries(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEntry, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(scanner rowScanner) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{}
	var changes, metadata []byte

	err := scanner.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.Action,
		&entry.ActorID,
		&entry.ActorName,
		&changes,
		&metadata,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit changes: %w", err)
		}
	}
	if len(metadata) > 0 {
		entry.Metadata = json.RawMessage(metadata)
	}

	return entry, nil
}
