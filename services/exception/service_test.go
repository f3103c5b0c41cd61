package exception

import (
	"context"
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

func newTestService(t *testing.T) (*Service, *mocks.ExceptionRepository, *mocks.ChangeRequestRepository) {
	t.Helper()
	exceptionRepo := new(mocks.ExceptionRepository)
	changeRepo := new(mocks.ChangeRequestRepository)
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	auditor := audit.NewService(new(mocks.AuditRepository), logger, audit.DefaultConfig())
	dispatcher := events.NewDispatcher(64, logger, nil)

	svc := NewService(exceptionRepo, changeRepo, &mocks.TxManager{}, auditor, dispatcher, nil, logger, 100)
	return svc, exceptionRepo, changeRepo
}

func pendingChangeRequest(mode models.EnforcementMode, timeoutHours int) *models.ChangeRequest {
	rule := models.NewRule("r", "c", models.LayerTeam, uuid.New())
	rule.Status = models.RuleStatusApproved
	rule.EnforcementMode = mode
	rule.TemporaryTimeoutHours = timeoutHours
	return models.NewChangeRequest(uuid.New(), rule, "config/app.yaml", "", "", "")
}

func testActor() services.Actor {
	return services.Actor{ID: uuid.New(), Name: "carol"}
}

func futureTime(d time.Duration) *time.Time {
	ts := time.Now().Add(d)
	return &ts
}

func TestFileException(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	cr := pendingChangeRequest(models.EnforcementBlock, 0)

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
	exceptionRepo.On("ActiveForChangeRequest", mock.Anything, cr.ID, mock.AnythingOfType("time.Time")).
		Return(false, nil)
	exceptionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.ExceptionRequest")).Return(nil)

	exc, err := svc.File(context.Background(), testActor(), FileInput{
		ChangeRequestID: cr.ID,
		Justification:   "vendor hotfix window",
		ExceptionType:   models.ExceptionTimeLimited,
		ExpiresAt:       futureTime(48 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, models.ExceptionPending, exc.Status)
	assert.Equal(t, cr.ID, exc.ChangeRequestID)
	require.NotNil(t, exc.ExpiresAt)
}

func TestFileExceptionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	actor := testActor()
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		input FileInput
	}{
		{"missing justification", FileInput{
			ChangeRequestID: uuid.New(),
			ExceptionType:   models.ExceptionPermanent,
		}},
		{"invalid type", FileInput{
			ChangeRequestID: uuid.New(),
			Justification:   "j",
			ExceptionType:   "indefinite",
		}},
		{"time limited without expiry", FileInput{
			ChangeRequestID: uuid.New(),
			Justification:   "j",
			ExceptionType:   models.ExceptionTimeLimited,
		}},
		{"time limited with past expiry", FileInput{
			ChangeRequestID: uuid.New(),
			Justification:   "j",
			ExceptionType:   models.ExceptionTimeLimited,
			ExpiresAt:       &past,
		}},
		{"permanent with expiry", FileInput{
			ChangeRequestID: uuid.New(),
			Justification:   "j",
			ExceptionType:   models.ExceptionPermanent,
			ExpiresAt:       futureTime(time.Hour),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exc, err := svc.File(context.Background(), actor, tt.input)
			assert.Nil(t, exc)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestFileExceptionSettledParent(t *testing.T) {
	svc, _, changeRepo := newTestService(t)
	cr := pendingChangeRequest(models.EnforcementWarning, 0)
	cr.Status = models.ChangeRequestApproved

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)

	exc, err := svc.File(context.Background(), testActor(), FileInput{
		ChangeRequestID: cr.ID,
		Justification:   "j",
		ExceptionType:   models.ExceptionPermanent,
	})

	assert.Nil(t, exc)
	assert.True(t, services.IsInvalidStateError(err))
}

func TestFileExceptionDuplicateActive(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	cr := pendingChangeRequest(models.EnforcementBlock, 0)

	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
	exceptionRepo.On("ActiveForChangeRequest", mock.Anything, cr.ID, mock.AnythingOfType("time.Time")).
		Return(true, nil)

	exc, err := svc.File(context.Background(), testActor(), FileInput{
		ChangeRequestID: cr.ID,
		Justification:   "j",
		ExceptionType:   models.ExceptionPermanent,
	})

	assert.Nil(t, exc)
	assert.ErrorIs(t, err, services.ErrDuplicateException)
	exceptionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApproveExceptionParksParent(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	actor := testActor()
	cr := pendingChangeRequest(models.EnforcementTemporary, 24)
	exc := models.NewExceptionRequest(cr.ID, cr.TeamID, uuid.New(), "j", models.ExceptionPermanent, nil)

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionPending, models.ExceptionApproved,
		mock.AnythingOfType("*uuid.UUID"), mock.AnythingOfType("*time.Time")).
		Return(true, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestPending, models.ChangeRequestExceptionGranted, (*time.Time)(nil)).
		Return(true, nil)

	approved, err := svc.Approve(context.Background(), actor, exc.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, models.ExceptionApproved, approved.Status)
	require.NotNil(t, approved.ResolvedBy)
	assert.Equal(t, actor.ID, *approved.ResolvedBy)
	changeRepo.AssertExpectations(t)
}

func TestApproveExceptionAutoRevertedParent(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	cr := pendingChangeRequest(models.EnforcementBlock, 0)
	exc := models.NewExceptionRequest(cr.ID, cr.TeamID, uuid.New(), "j", models.ExceptionPermanent, nil)

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionPending, models.ExceptionApproved,
		mock.AnythingOfType("*uuid.UUID"), mock.AnythingOfType("*time.Time")).
		Return(true, nil)
	// The parent already auto-reverted; the pending CAS misses and the
	// auto_reverted one lands.
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestPending, models.ChangeRequestExceptionGranted, (*time.Time)(nil)).
		Return(false, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		models.ChangeRequestAutoReverted, models.ChangeRequestExceptionGranted, (*time.Time)(nil)).
		Return(true, nil)

	approved, err := svc.Approve(context.Background(), testActor(), exc.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, models.ExceptionApproved, approved.Status)
	changeRepo.AssertExpectations(t)
}

func TestApproveExceptionSettledParentRefused(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	cr := pendingChangeRequest(models.EnforcementWarning, 0)
	exc := models.NewExceptionRequest(cr.ID, cr.TeamID, uuid.New(), "j", models.ExceptionPermanent, nil)

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionPending, models.ExceptionApproved,
		mock.AnythingOfType("*uuid.UUID"), mock.AnythingOfType("*time.Time")).
		Return(true, nil)
	changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
		mock.AnythingOfType("models.ChangeRequestStatus"), models.ChangeRequestExceptionGranted, (*time.Time)(nil)).
		Return(false, nil)

	approved, err := svc.Approve(context.Background(), testActor(), exc.ID, nil)

	assert.Nil(t, approved)
	assert.True(t, services.IsInvalidStateError(err))
}

func TestApprovePermanentExceptionRejectsExpiry(t *testing.T) {
	svc, exceptionRepo, _ := newTestService(t)
	exc := models.NewExceptionRequest(uuid.New(), uuid.New(), uuid.New(), "j", models.ExceptionPermanent, nil)

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)

	approved, err := svc.Approve(context.Background(), testActor(), exc.ID, futureTime(24*time.Hour))

	assert.Nil(t, approved)
	assert.True(t, services.IsValidationError(err))
	exceptionRepo.AssertNotCalled(t, "UpdateStatusFrom",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveNonPendingException(t *testing.T) {
	svc, exceptionRepo, _ := newTestService(t)
	exc := models.NewExceptionRequest(uuid.New(), uuid.New(), uuid.New(), "j", models.ExceptionPermanent, nil)
	exc.Status = models.ExceptionDenied

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)

	approved, err := svc.Approve(context.Background(), testActor(), exc.ID, nil)

	assert.Nil(t, approved)
	assert.True(t, services.IsInvalidTransitionError(err))
}

func TestDenyException(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	actor := testActor()
	exc := models.NewExceptionRequest(uuid.New(), uuid.New(), uuid.New(), "j", models.ExceptionPermanent, nil)

	exceptionRepo.On("GetByID", mock.Anything, exc.ID).Return(exc, nil)
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionPending, models.ExceptionDenied,
		mock.AnythingOfType("*uuid.UUID"), mock.AnythingOfType("*time.Time")).
		Return(true, nil)

	denied, err := svc.Deny(context.Background(), actor, exc.ID)

	require.NoError(t, err)
	assert.Equal(t, models.ExceptionDenied, denied.Status)
	// Denial never touches the parent change request.
	changeRepo.AssertNotCalled(t, "UpdateStatusFrom",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepExpiredRearmsByMode(t *testing.T) {
	tests := []struct {
		name        string
		mode        models.EnforcementMode
		wantStatus  models.ChangeRequestStatus
		wantTimeout bool
	}{
		{"block reverts", models.EnforcementBlock, models.ChangeRequestAutoReverted, false},
		{"temporary rearms with deadline", models.EnforcementTemporary, models.ChangeRequestPending, true},
		{"warning returns to pending", models.EnforcementWarning, models.ChangeRequestPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, exceptionRepo, changeRepo := newTestService(t)
			now := time.Now()

			cr := pendingChangeRequest(tt.mode, 8)
			cr.Status = models.ChangeRequestExceptionGranted
			cr.TimeoutAt = nil
			exc := models.NewExceptionRequest(cr.ID, cr.TeamID, uuid.New(), "j",
				models.ExceptionTimeLimited, futureTime(-time.Hour))
			exc.Status = models.ExceptionApproved

			exceptionRepo.On("ListExpired", mock.Anything, now, 100).
				Return([]*models.ExceptionRequest{exc}, nil)
			exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
				models.ExceptionApproved, models.ExceptionStatusExpired,
				(*uuid.UUID)(nil), (*time.Time)(nil)).
				Return(true, nil)
			changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)
			changeRepo.On("UpdateStatusFrom", mock.Anything, cr.ID,
				models.ChangeRequestExceptionGranted, tt.wantStatus,
				mock.MatchedBy(func(timeoutAt *time.Time) bool {
					if tt.wantTimeout {
						return timeoutAt != nil && timeoutAt.After(now)
					}
					return timeoutAt == nil
				})).
				Return(true, nil)

			processed, err := svc.SweepExpired(context.Background(), now)

			require.NoError(t, err)
			assert.Equal(t, 1, processed)
			changeRepo.AssertExpectations(t)
		})
	}
}

func TestSweepExpiredLostExceptionRace(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	now := time.Now()
	exc := models.NewExceptionRequest(uuid.New(), uuid.New(), uuid.New(), "j",
		models.ExceptionTimeLimited, futureTime(-time.Hour))
	exc.Status = models.ExceptionApproved

	exceptionRepo.On("ListExpired", mock.Anything, now, 100).
		Return([]*models.ExceptionRequest{exc}, nil)
	// A concurrent sweep already expired it; the row is counted as
	// processed and the parent is left alone.
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionApproved, models.ExceptionStatusExpired,
		(*uuid.UUID)(nil), (*time.Time)(nil)).
		Return(false, nil)

	processed, err := svc.SweepExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	changeRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestSweepExpiredParentMovedOn(t *testing.T) {
	svc, exceptionRepo, changeRepo := newTestService(t)
	now := time.Now()

	cr := pendingChangeRequest(models.EnforcementBlock, 0)
	cr.Status = models.ChangeRequestRejected
	exc := models.NewExceptionRequest(cr.ID, cr.TeamID, uuid.New(), "j",
		models.ExceptionTimeLimited, futureTime(-time.Hour))
	exc.Status = models.ExceptionApproved

	exceptionRepo.On("ListExpired", mock.Anything, now, 100).
		Return([]*models.ExceptionRequest{exc}, nil)
	exceptionRepo.On("UpdateStatusFrom", mock.Anything, exc.ID,
		models.ExceptionApproved, models.ExceptionStatusExpired,
		(*uuid.UUID)(nil), (*time.Time)(nil)).
		Return(true, nil)
	changeRepo.On("GetByID", mock.Anything, cr.ID).Return(cr, nil)

	processed, err := svc.SweepExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	changeRepo.AssertNotCalled(t, "UpdateStatusFrom",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetExceptionNotFound(t *testing.T) {
	svc, exceptionRepo, _ := newTestService(t)
	id := uuid.New()
	exceptionRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	exc, err := svc.Get(context.Background(), id)

	assert.Nil(t, exc)
	assert.ErrorIs(t, err, services.ErrExceptionNotFound)
}
