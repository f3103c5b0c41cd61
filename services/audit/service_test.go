package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingAuditRepo struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.AuditEntry
}

func (m *capturingAuditRepo) Insert(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.inserted = append(m.inserted, entry)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *capturingAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error) {
	args := m.Called(ctx, id)
	if entry := args.Get(0); entry != nil {
		return entry.(*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *capturingAuditRepo) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, filter)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *capturingAuditRepo) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *capturingAuditRepo) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return m
}

func (m *capturingAuditRepo) insertedEntries() []*models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditEntry, len(m.inserted))
	copy(out, m.inserted)
	return out
}

func newTestService(t *testing.T) (*Service, *capturingAuditRepo) {
	t.Helper()
	repo := new(capturingAuditRepo)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewService(repo, logger, Config{BufferSize: 100, WorkerCount: 2}), repo
}

func TestStartTwiceFails(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Start())
	defer svc.Stop(5 * time.Second)

	assert.Error(t, svc.Start())
}

func TestStopWithoutStartFails(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Error(t, svc.Stop(time.Second))
}

func TestRecordPersistsAsynchronously(t *testing.T) {
	svc, repo := newTestService(t)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, svc.Start())
	defer svc.Stop(5 * time.Second)

	entry := models.NewAuditEntry(models.EntityTypeRule, uuid.New(), models.AuditActionCreated, uuid.New(), "alice")
	svc.Record(entry)

	time.Sleep(100 * time.Millisecond)

	inserted := repo.insertedEntries()
	require.Len(t, inserted, 1)
	assert.Equal(t, entry.ID, inserted[0].ID)
}

func TestRecordDropsWhenNotStarted(t *testing.T) {
	svc, repo := newTestService(t)

	entry := models.NewAuditEntry(models.EntityTypeRule, uuid.New(), models.AuditActionCreated, uuid.New(), "alice")
	svc.Record(entry)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, repo.insertedEntries())
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestStopDrainsPendingEntries(t *testing.T) {
	svc, repo := newTestService(t)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, svc.Start())

	for i := 0; i < 20; i++ {
		svc.Record(models.NewAuditEntry(models.EntityTypeRule, uuid.New(), models.AuditActionUpdated, uuid.New(), "alice"))
	}

	require.NoError(t, svc.Stop(5*time.Second))
	assert.Len(t, repo.insertedEntries(), 20)
}

func TestRecordTransitionBuildsStatusChange(t *testing.T) {
	svc, repo := newTestService(t)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, svc.Start())

	actor := services.Actor{ID: uuid.New(), Name: "bob"}
	entityID := uuid.New()
	svc.RecordTransition(models.EntityTypeChangeRequest, entityID, models.AuditActionApproved, actor, "pending", "approved")

	require.NoError(t, svc.Stop(5*time.Second))

	inserted := repo.insertedEntries()
	require.Len(t, inserted, 1)
	entry := inserted[0]
	assert.Equal(t, models.EntityTypeChangeRequest, entry.EntityType)
	assert.Equal(t, entityID, entry.EntityID)
	assert.Equal(t, models.AuditActionApproved, entry.Action)
	assert.Equal(t, actor.ID, entry.ActorID)
	assert.Equal(t, "bob", entry.ActorName)
	assert.Equal(t, models.FieldChange{Old: "pending", New: "approved"}, entry.Changes["status"])
}

func TestRecordSync(t *testing.T) {
	svc, repo := newTestService(t)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	entry := models.NewAuditEntry(models.EntityTypeException, uuid.New(), models.AuditActionExceptionFiled, uuid.New(), "carol")
	require.NoError(t, svc.RecordSync(context.Background(), entry))

	require.Len(t, repo.insertedEntries(), 1)
}

func TestGetMapsNotFound(t *testing.T) {
	svc, repo := newTestService(t)
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	entry, err := svc.Get(context.Background(), id)

	assert.Nil(t, entry)
	assert.ErrorIs(t, err, services.ErrAuditEntryNotFound)
}

func TestListDefaultsLimit(t *testing.T) {
	svc, repo := newTestService(t)
	repo.On("List", mock.Anything, mock.MatchedBy(func(f repositories.AuditFilter) bool {
		return f.Limit == 50
	})).Return([]*models.AuditEntry{}, nil)

	_, err := svc.List(context.Background(), repositories.AuditFilter{})

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEntryContentDiff(t *testing.T) {
	svc, _ := newTestService(t)

	entry := models.NewAuditEntry(models.EntityTypeRule, uuid.New(), models.AuditActionUpdated, uuid.New(), "alice").
		WithChanges(map[string]models.FieldChange{
			"content": {Old: "line one\nline two", New: "line one\nline 2"},
		})

	lines := svc.EntryContentDiff(entry, "content")
	require.Len(t, lines, 3)
	assert.Equal(t, LineEqual, lines[0].Op)
	assert.Equal(t, LineRemoved, lines[1].Op)
	assert.Equal(t, LineAdded, lines[2].Op)

	assert.Nil(t, svc.EntryContentDiff(entry, "name"))
}
