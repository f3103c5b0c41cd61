package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeRequestStatus represents the enforcement state of a detected change
type ChangeRequestStatus string

const (
	ChangeRequestPending          ChangeRequestStatus = "pending"
	ChangeRequestApproved         ChangeRequestStatus = "approved"
	ChangeRequestRejected         ChangeRequestStatus = "rejected"
	ChangeRequestAutoReverted     ChangeRequestStatus = "auto_reverted"
	ChangeRequestExceptionGranted ChangeRequestStatus = "exception_granted"
)

// Valid reports whether the status is one of the known values.
func (s ChangeRequestStatus) Valid() bool {
	switch s {
	case ChangeRequestPending, ChangeRequestApproved, ChangeRequestRejected,
		ChangeRequestAutoReverted, ChangeRequestExceptionGranted:
		return true
	}
	return false
}

// ChangeRequest tracks one out-of-band file modification reported by the
// external detector. The enforcement mode and timeout window are
// snapshotted from the rule in force at detection time, so later rule
// edits never change how an already-detected request is handled.
type ChangeRequest struct {
	ID     uuid.UUID `json:"id" db:"id"`
	TeamID uuid.UUID `json:"team_id" db:"team_id"`
	RuleID uuid.UUID `json:"rule_id" db:"rule_id"`

	FilePath     string `json:"file_path" db:"file_path"`
	OriginalHash string `json:"original_hash" db:"original_hash"` // opaque fingerprint
	ModifiedHash string `json:"modified_hash" db:"modified_hash"` // opaque fingerprint
	DiffContent  string `json:"diff_content" db:"diff_content"`

	EnforcementMode       EnforcementMode     `json:"enforcement_mode" db:"enforcement_mode"`
	TemporaryTimeoutHours int                 `json:"temporary_timeout_hours" db:"temporary_timeout_hours"`
	Status                ChangeRequestStatus `json:"status" db:"status"`

	// TimeoutAt is set iff the snapshotted mode is temporary. It is the
	// persisted deadline the sweeper reconciles against; it survives
	// process restarts.
	TimeoutAt *time.Time `json:"timeout_at,omitempty" db:"timeout_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the ChangeRequest model
func (ChangeRequest) TableName() string {
	return "change_requests"
}

// NewChangeRequest creates a pending ChangeRequest, snapshotting the
// enforcement mode and timeout window from the governing rule.
func NewChangeRequest(teamID uuid.UUID, rule *Rule, filePath, originalHash, modifiedHash, diffContent string) *ChangeRequest {
	now := time.Now()
	cr := &ChangeRequest{
		ID:                    uuid.New(),
		TeamID:                teamID,
		RuleID:                rule.ID,
		FilePath:              filePath,
		OriginalHash:          originalHash,
		ModifiedHash:          modifiedHash,
		DiffContent:           diffContent,
		EnforcementMode:       rule.EnforcementMode,
		TemporaryTimeoutHours: rule.TemporaryTimeoutHours,
		Status:                ChangeRequestPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if cr.EnforcementMode == EnforcementTemporary {
		deadline := now.Add(time.Duration(cr.TemporaryTimeoutHours) * time.Hour)
		cr.TimeoutAt = &deadline
	}
	return cr
}

// IsTerminal reports whether user actions are no longer accepted.
// exception_granted can still be superseded by exception expiry, but
// that path goes through the exception sweeper, not user transitions.
func (c *ChangeRequest) IsTerminal() bool {
	return c.Status != ChangeRequestPending
}

// FreshTimeout returns a new deadline for re-armed temporary enforcement.
func (c *ChangeRequest) FreshTimeout(now time.Time) *time.Time {
	if c.EnforcementMode != EnforcementTemporary {
		return nil
	}
	deadline := now.Add(time.Duration(c.TemporaryTimeoutHours) * time.Hour)
	return &deadline
}
