package category

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/repositories/mocks"
	"github.com/ruleplane/backend/services"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventSink struct {
	mu       sync.Mutex
	received []*events.Event
}

func (s *eventSink) Name() string { return "sink" }

func (s *eventSink) Notify(_ context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, e)
	return nil
}

func (s *eventSink) all() []*events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*events.Event, len(s.received))
	copy(out, s.received)
	return out
}

func newTestService(t *testing.T) (*Service, *mocks.CategoryRepository, *mocks.RuleRepository) {
	t.Helper()
	categoryRepo := new(mocks.CategoryRepository)
	ruleRepo := new(mocks.RuleRepository)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	// Neither the auditor nor the dispatcher is started: entries and
	// events are dropped, which keeps the tests synchronous.
	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	dispatcher := events.NewDispatcher(16, logger, nil)
	svc := NewService(categoryRepo, ruleRepo, &mocks.TxManager{}, auditor, dispatcher, logger)
	return svc, categoryRepo, ruleRepo
}

func newRecordingService(t *testing.T) (*Service, *mocks.CategoryRepository, *mocks.RuleRepository, *eventSink, *events.Dispatcher) {
	t.Helper()
	categoryRepo := new(mocks.CategoryRepository)
	ruleRepo := new(mocks.RuleRepository)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	sink := &eventSink{}
	dispatcher := events.NewDispatcher(16, logger, nil)
	dispatcher.Register(sink)
	dispatcher.Start()

	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	svc := NewService(categoryRepo, ruleRepo, &mocks.TxManager{}, auditor, dispatcher, logger)
	return svc, categoryRepo, ruleRepo, sink, dispatcher
}

func testActor() services.Actor {
	return services.Actor{ID: uuid.New(), Name: "admin"}
}

func TestCreateCategory(t *testing.T) {
	svc, categoryRepo, _ := newTestService(t)
	categoryRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Category")).Return(nil)

	category, err := svc.Create(context.Background(), testActor(), "security", "security baselines")

	require.NoError(t, err)
	assert.Equal(t, "security", category.Name)
	assert.Equal(t, "security baselines", category.Description)
}

func TestCreateCategoryEmptyName(t *testing.T) {
	svc, categoryRepo, _ := newTestService(t)

	category, err := svc.Create(context.Background(), testActor(), "", "")

	assert.Nil(t, category)
	assert.True(t, services.IsValidationError(err))
	categoryRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCategoryMutationsEmitOneEventEach(t *testing.T) {
	actor := testActor()

	t.Run("create", func(t *testing.T) {
		svc, categoryRepo, _, sink, dispatcher := newRecordingService(t)
		categoryRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Category")).Return(nil)

		category, err := svc.Create(context.Background(), actor, "security", "")
		require.NoError(t, err)
		dispatcher.Stop()

		got := sink.all()
		require.Len(t, got, 1)
		assert.Equal(t, events.EventCategoryCreated, got[0].Type)
		assert.Equal(t, category.ID, got[0].EntityID)
	})

	t.Run("delete", func(t *testing.T) {
		svc, categoryRepo, ruleRepo, sink, dispatcher := newRecordingService(t)
		id := uuid.New()
		ruleRepo.On("DetachCategory", mock.Anything, id).Return(nil)
		categoryRepo.On("Delete", mock.Anything, id).Return(nil)

		require.NoError(t, svc.Delete(context.Background(), actor, id))
		dispatcher.Stop()

		got := sink.all()
		require.Len(t, got, 1)
		assert.Equal(t, events.EventCategoryDeleted, got[0].Type)
		assert.Equal(t, id, got[0].EntityID)
	})
}

func TestGetCategoryNotFound(t *testing.T) {
	svc, categoryRepo, _ := newTestService(t)
	id := uuid.New()
	categoryRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	category, err := svc.Get(context.Background(), id)

	assert.Nil(t, category)
	assert.ErrorIs(t, err, services.ErrCategoryNotFound)
}

func TestDeleteCategoryDetachesRules(t *testing.T) {
	svc, categoryRepo, ruleRepo := newTestService(t)
	id := uuid.New()

	ruleRepo.On("DetachCategory", mock.Anything, id).Return(nil)
	categoryRepo.On("Delete", mock.Anything, id).Return(nil)

	require.NoError(t, svc.Delete(context.Background(), testActor(), id))
	ruleRepo.AssertExpectations(t)
	categoryRepo.AssertExpectations(t)
}

func TestDeleteCategoryNotFound(t *testing.T) {
	svc, categoryRepo, ruleRepo := newTestService(t)
	id := uuid.New()

	ruleRepo.On("DetachCategory", mock.Anything, id).Return(nil)
	categoryRepo.On("Delete", mock.Anything, id).Return(repositories.ErrNotFound)

	err := svc.Delete(context.Background(), testActor(), id)

	assert.ErrorIs(t, err, services.ErrCategoryNotFound)
}
