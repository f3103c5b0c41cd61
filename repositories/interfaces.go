package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
)

// ErrNotFound is wrapped by repository implementations when a lookup
// matches no row. Services translate it into their domain error.
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RuleRepository handles rule data operations
type RuleRepository interface {
	// Create creates a new rule
	Create(ctx context.Context, rule *models.Rule) error

	// GetByID retrieves a rule by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)

	// ListByTeam retrieves all rules owned by a team
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]*models.Rule, error)

	// ListCandidates retrieves the approved rules visible to a team:
	// the team's own rules plus all global rules.
	ListCandidates(ctx context.Context, teamID uuid.UUID) ([]*models.Rule, error)

	// ListByStatus retrieves rules in a given lifecycle state
	ListByStatus(ctx context.Context, status models.RuleStatus, limit, offset int) ([]*models.Rule, error)

	// Update updates a rule's mutable fields
	Update(ctx context.Context, rule *models.Rule) error

	// UpdateStatusFrom transitions the rule status with compare-and-set
	// semantics: the update applies only if the stored status still equals
	// from. Returns false (and no error) when the row was not in from.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.RuleStatus, submittedAt *time.Time) (bool, error)

	// Delete deletes a rule
	Delete(ctx context.Context, id uuid.UUID) error

	// DetachCategory clears the category reference on all rules pointing
	// at the category. Used when a category is deleted.
	DetachCategory(ctx context.Context, categoryID uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RuleRepository
}

// ApprovalRepository handles approval record operations. Records are
// append-only and immutable.
type ApprovalRepository interface {
	// Insert appends a new approval record
	Insert(ctx context.Context, record *models.ApprovalRecord) error

	// GetByRule retrieves all decisions recorded for a rule
	GetByRule(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRecord, error)

	// ExistsForUser reports whether the user already decided on the rule
	ExistsForUser(ctx context.Context, ruleID, userID uuid.UUID) (bool, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ApprovalRepository
}

// ChangeRequestFilter narrows change request listings.
type ChangeRequestFilter struct {
	TeamID *uuid.UUID
	Status *models.ChangeRequestStatus
	Limit  int
	Offset int
}

// ChangeRequestRepository handles change request operations
type ChangeRequestRepository interface {
	// Create creates a new change request
	Create(ctx context.Context, cr *models.ChangeRequest) error

	// GetByID retrieves a change request by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error)

	// List retrieves change requests matching the filter
	List(ctx context.Context, filter ChangeRequestFilter) ([]*models.ChangeRequest, error)

	// UpdateStatusFrom transitions the status with compare-and-set
	// semantics and overwrites timeout_at with the given deadline (nil
	// clears it). Returns false when the row was not in from.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ChangeRequestStatus, timeoutAt *time.Time) (bool, error)

	// ListExpired retrieves pending temporary requests whose persisted
	// deadline has passed. The sweeper reconciles these against
	// wall-clock time so a process restart cannot lose a reversal.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ChangeRequest, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ChangeRequestRepository
}

// ExceptionFilter narrows exception listings.
type ExceptionFilter struct {
	TeamID          *uuid.UUID
	ChangeRequestID *uuid.UUID
	Status          *models.ExceptionStatus
	Limit           int
	Offset          int
}

// ExceptionRepository handles exception request operations
type ExceptionRepository interface {
	// Create creates a new exception request
	Create(ctx context.Context, ex *models.ExceptionRequest) error

	// GetByID retrieves an exception request by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExceptionRequest, error)

	// List retrieves exception requests matching the filter
	List(ctx context.Context, filter ExceptionFilter) ([]*models.ExceptionRequest, error)

	// ActiveForChangeRequest reports whether an active (pending, or
	// approved and unexpired) exception exists for the change request.
	ActiveForChangeRequest(ctx context.Context, changeRequestID uuid.UUID, now time.Time) (bool, error)

	// UpdateStatusFrom transitions the status with compare-and-set
	// semantics, recording the resolver. Returns false when the row was
	// not in from.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ExceptionStatus, resolvedBy *uuid.UUID, resolvedAt *time.Time) (bool, error)

	// ListExpired retrieves approved time-limited exceptions whose
	// expires_at has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ExceptionRequest, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ExceptionRepository
}

// AuditFilter narrows audit trail queries.
type AuditFilter struct {
	EntityType string
	Action     models.AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// AuditRepository handles audit entry operations. Entries are append-only.
type AuditRepository interface {
	// Insert appends a new audit entry
	Insert(ctx context.Context, entry *models.AuditEntry) error

	// GetByID retrieves an audit entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error)

	// List retrieves audit entries matching the filter, newest first
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// ListByEntity retrieves the ordered history for one entity,
	// oldest first, suitable for diffing consecutive entries.
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// TeamRepository handles team data operations
type TeamRepository interface {
	// Create creates a new team
	Create(ctx context.Context, team *models.Team) error

	// GetByID retrieves a team by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)

	// List retrieves all teams with pagination
	List(ctx context.Context, limit, offset int) ([]*models.Team, error)

	// Update updates a team
	Update(ctx context.Context, team *models.Team) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) TeamRepository
}

// CategoryRepository handles category data operations
type CategoryRepository interface {
	// Create creates a new category
	Create(ctx context.Context, category *models.Category) error

	// GetByID retrieves a category by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)

	// List retrieves all categories
	List(ctx context.Context) ([]*models.Category, error)

	// Delete deletes a category
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) CategoryRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Rules          RuleRepository
	Approvals      ApprovalRepository
	ChangeRequests ChangeRequestRepository
	Exceptions     ExceptionRepository
	AuditEntries   AuditRepository
	Teams          TeamRepository
	Categories     CategoryRepository
}
