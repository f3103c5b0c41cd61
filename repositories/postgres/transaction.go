package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruleplane/backend/repositories"
	"go.uber.org/zap"
)

// txContextKey carries the open transaction through the context so
// repositories called inside InTransaction join it via GetExecutor.
type txContextKey struct{}

// txManager runs settlement transactions: the multi-table writes that
// must commit atomically (decision quorum plus rule transition,
// exception grant plus parent change request). CAS status updates make
// read committed sufficient; a lost race surfaces as zero rows
// affected, never as a serialization failure.
type txManager struct {
	db     *DB
	opts   sql.TxOptions
	logger *zap.Logger
}

// NewTransactionManager creates the settlement transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &txManager{
		db:     db,
		opts:   sql.TxOptions{Isolation: sql.LevelReadCommitted},
		logger: logger,
	}
}

// Begin starts a new transaction
func (m *txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := m.db.BeginTx(ctx, &m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: sqlTx, ctx: ctx}, nil
}

// InTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic. The transaction is injected into the
// context passed to fn so repository calls made with it join the
// transaction.
func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("rollback after panic failed", zap.Error(rbErr))
			}
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgTx wraps one sql.Tx. Commit and Rollback are idempotent so the
// InTransaction cleanup path can run after an explicit settle.
type pgTx struct {
	tx   *sql.Tx
	ctx  context.Context
	done bool
}

// Commit commits the transaction
func (t *pgTx) Commit() error {
	if t.done {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.done = true
	return nil
}

// Rollback rolls back the transaction. A transaction that already
// settled is left alone.
func (t *pgTx) Rollback() error {
	if t.done {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		if err == sql.ErrTxDone {
			t.done = true
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.done = true
	return nil
}

// Context returns the context the transaction was started with
func (t *pgTx) Context() context.Context {
	return t.ctx
}

// Executor is the query surface shared by *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor resolves the executor for a repository call: the open
// transaction when one rides the context, the pool otherwise.
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txContextKey{}).(*pgTx); ok {
		return tx.tx
	}
	return db.DB
}
