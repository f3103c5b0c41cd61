package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/ruleplane/backend/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Teams table
		CREATE TABLE IF NOT EXISTS teams (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			inherit_global_rules BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Categories table
		CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Rules table
		CREATE TABLE IF NOT EXISTS rules (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			target_layer VARCHAR(20) NOT NULL,
			team_id UUID REFERENCES teams(id) ON DELETE CASCADE,
			force BOOLEAN NOT NULL DEFAULT false,
			status VARCHAR(20) NOT NULL,
			enforcement_mode VARCHAR(20) NOT NULL,
			temporary_timeout_hours INTEGER NOT NULL DEFAULT 0,
			priority_weight INTEGER NOT NULL DEFAULT 0,
			overridable BOOLEAN NOT NULL DEFAULT true,
			category_id UUID REFERENCES categories(id) ON DELETE SET NULL,
			effective_start TIMESTAMP,
			effective_end TIMESTAMP,
			triggers JSONB NOT NULL DEFAULT '[]',
			created_by UUID NOT NULL,
			submitted_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Approval records table (append-only)
		CREATE TABLE IF NOT EXISTS approval_records (
			id UUID PRIMARY KEY,
			rule_id UUID NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			decision VARCHAR(20) NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(rule_id, user_id)
		);

		-- Change requests table
		CREATE TABLE IF NOT EXISTS change_requests (
			id UUID PRIMARY KEY,
			team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			rule_id UUID NOT NULL,
			file_path TEXT NOT NULL,
			original_hash VARCHAR(255) NOT NULL,
			modified_hash VARCHAR(255) NOT NULL,
			diff_content TEXT NOT NULL DEFAULT '',
			enforcement_mode VARCHAR(20) NOT NULL,
			temporary_timeout_hours INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(30) NOT NULL,
			timeout_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Exception requests table
		CREATE TABLE IF NOT EXISTS exception_requests (
			id UUID PRIMARY KEY,
			change_request_id UUID NOT NULL REFERENCES change_requests(id) ON DELETE CASCADE,
			team_id UUID NOT NULL,
			requested_by UUID NOT NULL,
			justification TEXT NOT NULL,
			exception_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			expires_at TIMESTAMP,
			resolved_by UUID,
			resolved_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Audit entries table (append-only)
		CREATE TABLE IF NOT EXISTS audit_entries (
			id UUID PRIMARY KEY,
			entity_type VARCHAR(50) NOT NULL,
			entity_id UUID NOT NULL,
			action VARCHAR(50) NOT NULL,
			actor_id UUID NOT NULL,
			actor_name VARCHAR(255) NOT NULL DEFAULT '',
			changes JSONB NOT NULL DEFAULT '{}',
			metadata JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_rules_team_id ON rules(team_id);
		CREATE INDEX IF NOT EXISTS idx_rules_status ON rules(status);
		CREATE INDEX IF NOT EXISTS idx_rules_category_id ON rules(category_id);

		CREATE INDEX IF NOT EXISTS idx_approval_records_rule_id ON approval_records(rule_id);

		CREATE INDEX IF NOT EXISTS idx_change_requests_team_id ON change_requests(team_id);
		CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests(status);
		CREATE INDEX IF NOT EXISTS idx_change_requests_timeout_at ON change_requests(timeout_at);

		CREATE INDEX IF NOT EXISTS idx_exception_requests_change_request_id ON exception_requests(change_request_id);
		CREATE INDEX IF NOT EXISTS idx_exception_requests_status ON exception_requests(status);
		CREATE INDEX IF NOT EXISTS idx_exception_requests_expires_at ON exception_requests(expires_at);

		CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at ON audit_entries(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
