package enforcement

import (
	"context"
	"sync"
	"testing"
	"time"

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

type countingMetrics struct {
	mu      sync.Mutex
	applied map[string]int
	lost    int
	sweeps  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{applied: make(map[string]int)}
}

func (m *countingMetrics) TransitionApplied(entityType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[outcome]++
}

func (m *countingMetrics) TransitionLost(entityType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost++
}

func (m *countingMetrics) SweepCompleted(duration time.Duration, reverted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
}

func newTestService(t *testing.T) (*Service, *mocks.ChangeRequestRepository, *mocks.RuleRepository, *countingMetrics) {
	t.Helper()
	changeRepo := new(mocks.ChangeRequestRepository)
	ruleRepo := new(mocks.RuleRepository)
	metrics := newCountingMetrics()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	dispatcher := events.NewDispatcher(64, logger, nil)

	svc := NewService(changeRepo, ruleRepo, auditor, dispatcher, metrics, logger, 100)
	return svc, changeRepo, ruleRepo, metrics
}

func approvedRule(mode models.EnforcementMode, timeoutHours int) *models.Rule {
	rule := models.NewRule("r", "c", models.LayerTeam, uuid.New())
	rule.Status = models.RuleStatusApproved
	rule.EnforcementMode = mode
	rule.TemporaryTimeoutHours = timeoutHours
	return rule
}

func detection(ruleID uuid.UUID) DetectionInput {
	return DetectionInput{
		TeamID:       uuid.New(),
		RuleID:       ruleID,
		FilePath:     "config/app.yaml",
		OriginalHash: "aaa",
		ModifiedHash: "bbb",
		DiffContent:  "-x\n+y",
	}
}

func TestCreateFromDetectionSnapshotsRule(t *testing.T) {
	svc, changeRepo, ruleRepo, _ := newTestService(t)
	rule := approvedRule(models.EnforcementTemporary, 24)

	ruleRepo.On("GetByID", mock.Anything, rule.ID).Return(rule, nil)
	changeRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.ChangeRequest")).Return(nil)

	cr, err := svc.CreateFromDetection(context.Background(), detection(rule.ID))

	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestPending, cr.Status)
	assert.Equal(t, models.EnforcementTemporary, cr.EnforcementMode)
	assert.Equal(t, 24, cr.TemporaryTimeoutHours)
	require.NotNil(t, cr.TimeoutAt)
}

func TestCreateFromDetectionBlockModeHasNoDeadline(t *testing.T) {
	svc, changeRepo, ruleRepo, _ := newTestService(t)
	rule := approvedRule(models.EnforcementBlock, 0)

	ruleRepo.On("GetByID", mock.Anything, rule.ID).Return(rule, nil)
	changeRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.ChangeRequest")).Return(nil)

	cr, err := svc.CreateFromDetection(context.Background(), detection(rule.ID))

	require.NoError(t, err)
	assert.Nil(t, cr.TimeoutAt)
}

func TestCreateFromDetectionRequiresFilePath(t *testing.T) {
	svc, _, ruleRepo, _ := newTestService(t)

	input := detection(uuid.New())
	input.FilePath = ""

	cr, err := svc.CreateFromDetection(context.Background(), input)

	assert.Nil(t, cr)
	assert.True(t, services.IsValidationError(err))
	ruleRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCreateFromDetectionRequiresApprovedRule(t *testing.T) {
	svc, changeRepo, ruleRepo, _ := newTestService(t)
	rule := approvedRule(models.EnforcementWarning, 0)
	rule.Status = models.RuleStatusDraft

	ruleRepo.On("GetByID", mock.Anything, rule.ID).Return(rule, nil)

	cr, err := svc.CreateFromDetection(context.Background(), detection(rule.ID))

	assert.Nil(t, cr)
	assert.True(t, services.IsInvalidStateError(err))
	changeRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateFromDetectionRuleNotFound(t *testing.T) {
	svc, _, ruleRepo, _ := newTestService(t)
	id := uuid.New()
	ruleRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	cr, err := svc.CreateFromDetection(context.Background(), detection(id))

	assert.Nil(t, cr)
	assert.ErrorIs(t, err, services.ErrRuleNotFound)
}

func TestApproveClearsDeadline(t *testing.T) {
	svc, changeRepo, _, metrics := newTestService(t)
	rule := approvedRule(models.EnforcementTemporary, 12)
	cr := models.NewChangeRequest(uuid.New(), rule, "main.go", "", "", "")

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestPending, models.ChangeRequestApproved, (*time.Time)(nil)).
		Return(true, nil)

	approved, err := svc.Approve(context.Background(), services.Actor{ID: uuid.New(), Name: "eve"}, cr.ID)

	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, approved.Status)
	assert.Nil(t, approved.TimeoutAt)
	assert.Equal(t, 1, metrics.applied[string(models.ChangeRequestApproved)])
}

func TestRejectPendingChange(t *testing.T) {
	svc, changeRepo, _, _ := newTestService(t)
	rule := approvedRule(models.EnforcementWarning, 0)
	cr := models.NewChangeRequest(uuid.New(), rule, "main.go", "", "", "")

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestPending, models.ChangeRequestRejected, (*time.Time)(nil)).
		Return(true, nil)

	rejected, err := svc.Reject(context.Background(), services.Actor{ID: uuid.New(), Name: "eve"}, cr.ID)

	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestRejected, rejected.Status)
}

func TestUserTransitionFromSettledState(t *testing.T) {
	svc, changeRepo, _, _ := newTestService(t)
	rule := approvedRule(models.EnforcementWarning, 0)
	cr := models.NewChangeRequest(uuid.New(), rule, "main.go", "", "", "")
	cr.Status = models.ChangeRequestAutoReverted

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)

	approved, err := svc.Approve(context.Background(), services.Actor{ID: uuid.New(), Name: "eve"}, cr.ID)

	assert.Nil(t, approved)
	assert.True(t, services.IsInvalidTransitionError(err))
	changeRepo.AssertNotCalled(t, "UpdateStatusFrom",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserTransitionLostRace(t *testing.T) {
	svc, changeRepo, _, metrics := newTestService(t)
	rule := approvedRule(models.EnforcementTemporary, 1)
	cr := models.NewChangeRequest(uuid.New(), rule, "main.go", "", "", "")

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestPending, models.ChangeRequestApproved, (*time.Time)(nil)).
		Return(false, nil)

	approved, err := svc.Approve(context.Background(), services.Actor{ID: uuid.New(), Name: "eve"}, cr.ID)

	assert.Nil(t, approved)
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.Equal(t, 1, metrics.lost)
}

func TestSweepRevertsExpiredRequests(t *testing.T) {
	svc, changeRepo, _, metrics := newTestService(t)
	rule := approvedRule(models.EnforcementTemporary, 1)
	first := models.NewChangeRequest(uuid.New(), rule, "a.go", "", "", "")
	second := models.NewChangeRequest(uuid.New(), rule, "b.go", "", "", "")
	now := time.Now()

	changeRepo.On("ListExpired", mock.Anything, now, 100).
		Return([]*models.ChangeRequest{first, second}, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, first.ID,
		models.ChangeRequestPending, models.ChangeRequestAutoReverted, (*time.Time)(nil)).
		Return(true, nil)
	// The second row was decided by a user between the read and the write.
	changeRepo.On("UpdateStatusFrom", mock.Anything, second.ID,
		models.ChangeRequestPending, models.ChangeRequestAutoReverted, (*time.Time)(nil)).
		Return(false, nil)

	reverted, err := svc.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, reverted)
	assert.Equal(t, 1, metrics.applied[string(models.ChangeRequestAutoReverted)])
	assert.Equal(t, 1, metrics.lost)
	assert.Equal(t, 1, metrics.sweeps)
}

func TestSweepEmptyBatch(t *testing.T) {
	svc, changeRepo, _, metrics := newTestService(t)
	now := time.Now()

	changeRepo.On("ListExpired", mock.Anything, now, 100).Return([]*models.ChangeRequest{}, nil)

	reverted, err := svc.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 0, reverted)
	assert.Equal(t, 1, metrics.sweeps)
}
