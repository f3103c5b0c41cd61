// Package mocks provides testify-backed repository doubles shared by
// service and handler tests.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/stretchr/testify/mock"
)

// RuleRepository is a mock implementation of repositories.RuleRepository
type RuleRepository struct {
	mock.Mock
}

func (m *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	args := m.Called(ctx, id)
	if rule := args.Get(0); rule != nil {
		return rule.(*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RuleRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]*models.Rule, error) {
	args := m.Called(ctx, teamID, limit, offset)
	if rules := args.Get(0); rules != nil {
		return rules.([]*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RuleRepository) ListCandidates(ctx context.Context, teamID uuid.UUID) ([]*models.Rule, error) {
	args := m.Called(ctx, teamID)
	if rules := args.Get(0); rules != nil {
		return rules.([]*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RuleRepository) ListByStatus(ctx context.Context, status models.RuleStatus, limit, offset int) ([]*models.Rule, error) {
	args := m.Called(ctx, status, limit, offset)
	if rules := args.Get(0); rules != nil {
		return rules.([]*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *RuleRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.RuleStatus, submittedAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, submittedAt)
	return args.Bool(0), args.Error(1)
}

func (m *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *RuleRepository) DetachCategory(ctx context.Context, categoryID uuid.UUID) error {
	args := m.Called(ctx, categoryID)
	return args.Error(0)
}

func (m *RuleRepository) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return m
}

// ApprovalRepository is a mock implementation of repositories.ApprovalRepository
type ApprovalRepository struct {
	mock.Mock
}

func (m *ApprovalRepository) Insert(ctx context.Context, record *models.ApprovalRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *ApprovalRepository) GetByRule(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRecord, error) {
	args := m.Called(ctx, ruleID)
	if records := args.Get(0); records != nil {
		return records.([]*models.ApprovalRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ApprovalRepository) ExistsForUser(ctx context.Context, ruleID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, ruleID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ApprovalRepository) WithTx(tx repositories.Transaction) repositories.ApprovalRepository {
	return m
}

// ChangeRequestRepository is a mock implementation of repositories.ChangeRequestRepository
type ChangeRequestRepository struct {
	mock.Mock
}

func (m *ChangeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	args := m.Called(ctx, cr)
	return args.Error(0)
}

func (m *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	args := m.Called(ctx, id)
	if cr := args.Get(0); cr != nil {
		return cr.(*models.ChangeRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ChangeRequestRepository) List(ctx context.Context, filter repositories.ChangeRequestFilter) ([]*models.ChangeRequest, error) {
	args := m.Called(ctx, filter)
	if list := args.Get(0); list != nil {
		return list.([]*models.ChangeRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ChangeRequestRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ChangeRequestStatus, timeoutAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, timeoutAt)
	return args.Bool(0), args.Error(1)
}

func (m *ChangeRequestRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ChangeRequest, error) {
	args := m.Called(ctx, now, limit)
	if list := args.Get(0); list != nil {
		return list.([]*models.ChangeRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ChangeRequestRepository) WithTx(tx repositories.Transaction) repositories.ChangeRequestRepository {
	return m
}

// ExceptionRepository is a mock implementation of repositories.ExceptionRepository
type ExceptionRepository struct {
	mock.Mock
}

func (m *ExceptionRepository) Create(ctx context.Context, ex *models.ExceptionRequest) error {
	args := m.Called(ctx, ex)
	return args.Error(0)
}

func (m *ExceptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExceptionRequest, error) {
	args := m.Called(ctx, id)
	if ex := args.Get(0); ex != nil {
		return ex.(*models.ExceptionRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExceptionRepository) List(ctx context.Context, filter repositories.ExceptionFilter) ([]*models.ExceptionRequest, error) {
	args := m.Called(ctx, filter)
	if list := args.Get(0); list != nil {
		return list.([]*models.ExceptionRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExceptionRepository) ActiveForChangeRequest(ctx context.Context, changeRequestID uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, changeRequestID, now)
	return args.Bool(0), args.Error(1)
}

func (m *ExceptionRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.ExceptionStatus, resolvedBy *uuid.UUID, resolvedAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, resolvedBy, resolvedAt)
	return args.Bool(0), args.Error(1)
}

func (m *ExceptionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ExceptionRequest, error) {
	args := m.Called(ctx, now, limit)
	if list := args.Get(0); list != nil {
		return list.([]*models.ExceptionRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExceptionRepository) WithTx(tx repositories.Transaction) repositories.ExceptionRepository {
	return m
}

// AuditRepository is a mock implementation of repositories.AuditRepository
type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error) {
	args := m.Called(ctx, id)
	if entry := args.Get(0); entry != nil {
		return entry.(*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, filter)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AuditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return m
}

// TeamRepository is a mock implementation of repositories.TeamRepository
type TeamRepository struct {
	mock.Mock
}

func (m *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	args := m.Called(ctx, id)
	if team := args.Get(0); team != nil {
		return team.(*models.Team), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) List(ctx context.Context, limit, offset int) ([]*models.Team, error) {
	args := m.Called(ctx, limit, offset)
	if teams := args.Get(0); teams != nil {
		return teams.([]*models.Team), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) Update(ctx context.Context, team *models.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *TeamRepository) WithTx(tx repositories.Transaction) repositories.TeamRepository {
	return m
}

// CategoryRepository is a mock implementation of repositories.CategoryRepository
type CategoryRepository struct {
	mock.Mock
}

func (m *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	args := m.Called(ctx, id)
	if category := args.Get(0); category != nil {
		return category.(*models.Category), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CategoryRepository) List(ctx context.Context) ([]*models.Category, error) {
	args := m.Called(ctx)
	if categories := args.Get(0); categories != nil {
		return categories.([]*models.Category), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *CategoryRepository) WithTx(tx repositories.Transaction) repositories.CategoryRepository {
	return m
}

// TxManager runs transaction functions inline without a database. The
// nil Transaction is safe because repositories resolve their executor
// from the context, not the Transaction value.
type TxManager struct {
	BeginErr error
}

func (m *TxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return fakeTx{ctx: ctx}, nil
}

func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	return fn(ctx, fakeTx{ctx: ctx})
}

type fakeTx struct {
	ctx context.Context
}

func (fakeTx) Commit() error { return nil }

func (fakeTx) Rollback() error { return nil }

func (t fakeTx) Context() context.Context { return t.ctx }
