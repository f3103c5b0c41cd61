package team

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
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

func newTestService(t *testing.T) (*Service, *mocks.TeamRepository) {
	t.Helper()
	teamRepo := new(mocks.TeamRepository)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	// Neither the auditor nor the dispatcher is started: entries and
	// events are dropped, which keeps the tests synchronous.
	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	dispatcher := events.NewDispatcher(16, logger, nil)
	return NewService(teamRepo, auditor, dispatcher, logger), teamRepo
}

func newRecordingService(t *testing.T) (*Service, *mocks.TeamRepository, *eventSink, *events.Dispatcher) {
	t.Helper()
	teamRepo := new(mocks.TeamRepository)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	sink := &eventSink{}
	dispatcher := events.NewDispatcher(16, logger, nil)
	dispatcher.Register(sink)
	dispatcher.Start()

	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	return NewService(teamRepo, auditor, dispatcher, logger), teamRepo, sink, dispatcher
}

func testActor() services.Actor {
	return services.Actor{ID: uuid.New(), Name: "admin"}
}

func TestCreateTeam(t *testing.T) {
	svc, teamRepo := newTestService(t)
	teamRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Team")).Return(nil)

	team, err := svc.Create(context.Background(), testActor(), "payments")

	require.NoError(t, err)
	assert.Equal(t, "payments", team.Name)
	assert.True(t, team.InheritGlobalRules, "new teams inherit global rules")
}

func TestCreateTeamEmptyName(t *testing.T) {
	svc, teamRepo := newTestService(t)

	team, err := svc.Create(context.Background(), testActor(), "")

	assert.Nil(t, team)
	assert.True(t, services.IsValidationError(err))
	teamRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTeamMutationsEmitOneEventEach(t *testing.T) {
	actor := testActor()

	t.Run("create", func(t *testing.T) {
		svc, teamRepo, sink, dispatcher := newRecordingService(t)
		teamRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Team")).Return(nil)

		team, err := svc.Create(context.Background(), actor, "payments")
		require.NoError(t, err)
		dispatcher.Stop()

		got := sink.all()
		require.Len(t, got, 1)
		assert.Equal(t, events.EventTeamCreated, got[0].Type)
		assert.Equal(t, team.ID, got[0].EntityID)
	})

	t.Run("settings update", func(t *testing.T) {
		svc, teamRepo, sink, dispatcher := newRecordingService(t)
		team := models.NewTeam("payments")
		teamRepo.On("GetByID", mock.Anything, team.ID).Return(team, nil)
		teamRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.Team")).Return(nil)

		_, err := svc.SetInheritGlobalRules(context.Background(), actor, team.ID, false)
		require.NoError(t, err)
		dispatcher.Stop()

		got := sink.all()
		require.Len(t, got, 1)
		assert.Equal(t, events.EventTeamUpdated, got[0].Type)
		assert.Equal(t, false, got[0].Payload["inherit_global_rules"])
	})

	t.Run("settings no-op", func(t *testing.T) {
		svc, teamRepo, sink, dispatcher := newRecordingService(t)
		team := models.NewTeam("payments")
		teamRepo.On("GetByID", mock.Anything, team.ID).Return(team, nil)

		_, err := svc.SetInheritGlobalRules(context.Background(), actor, team.ID, true)
		require.NoError(t, err)
		dispatcher.Stop()

		assert.Empty(t, sink.all())
	})
}

func TestGetTeamNotFound(t *testing.T) {
	svc, teamRepo := newTestService(t)
	id := uuid.New()
	teamRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	team, err := svc.Get(context.Background(), id)

	assert.Nil(t, team)
	assert.ErrorIs(t, err, services.ErrTeamNotFound)
}

func TestSetInheritGlobalRules(t *testing.T) {
	svc, teamRepo := newTestService(t)
	team := models.NewTeam("payments")

	teamRepo.On("GetByID", mock.Anything, team.ID).Return(team, nil)
	teamRepo.On("Update", mock.Anything, mock.MatchedBy(func(updated *models.Team) bool {
		return updated.ID == team.ID && !updated.InheritGlobalRules
	})).Return(nil)

	updated, err := svc.SetInheritGlobalRules(context.Background(), testActor(), team.ID, false)

	require.NoError(t, err)
	assert.False(t, updated.InheritGlobalRules)
	teamRepo.AssertExpectations(t)
}

func TestSetInheritGlobalRulesNoChange(t *testing.T) {
	svc, teamRepo := newTestService(t)
	team := models.NewTeam("payments")

	teamRepo.On("GetByID", mock.Anything, team.ID).Return(team, nil)

	updated, err := svc.SetInheritGlobalRules(context.Background(), testActor(), team.ID, true)

	require.NoError(t, err)
	assert.True(t, updated.InheritGlobalRules)
	teamRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestListDefaultsLimit(t *testing.T) {
	svc, teamRepo := newTestService(t)
	teamRepo.On("List", mock.Anything, 50, 0).Return([]*models.Team{}, nil)

	_, err := svc.List(context.Background(), 0, 0)

	require.NoError(t, err)
	teamRepo.AssertExpectations(t)
}
