package models

import (
	"time"

	"github.com/google/uuid"
)

// ExceptionType distinguishes time-limited overrides from permanent ones
type ExceptionType string

const (
	ExceptionTimeLimited ExceptionType = "time_limited"
	ExceptionPermanent   ExceptionType = "permanent"
)

// Valid reports whether the type is one of the known values.
func (t ExceptionType) Valid() bool {
	return t == ExceptionTimeLimited || t == ExceptionPermanent
}

// ExceptionStatus represents the lifecycle state of an exception request.
// expired is reached only by the sweeper when an approved time-limited
// exception passes its deadline.
type ExceptionStatus string

const (
	ExceptionPending       ExceptionStatus = "pending"
	ExceptionApproved      ExceptionStatus = "approved"
	ExceptionDenied        ExceptionStatus = "denied"
	ExceptionStatusExpired ExceptionStatus = "expired"
)

// Valid reports whether the status is a known lifecycle state
func (s ExceptionStatus) Valid() bool {
	return s == ExceptionPending || s == ExceptionApproved ||
		s == ExceptionDenied || s == ExceptionStatusExpired
}

// ExceptionRequest is an admin-granted override that suspends enforcement
// for a specific change request. A change request has at most one active
// (pending, or approved and unexpired) exception at a time.
type ExceptionRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ChangeRequestID uuid.UUID       `json:"change_request_id" db:"change_request_id"`
	TeamID          uuid.UUID       `json:"team_id" db:"team_id"`
	RequestedBy     uuid.UUID       `json:"requested_by" db:"requested_by"`
	Justification   string          `json:"justification" db:"justification"`
	ExceptionType   ExceptionType   `json:"exception_type" db:"exception_type"`
	Status          ExceptionStatus `json:"status" db:"status"`

	// ExpiresAt is set iff ExceptionType = time_limited.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the ExceptionRequest model
func (ExceptionRequest) TableName() string {
	return "exception_requests"
}

// NewExceptionRequest creates a pending ExceptionRequest instance
func NewExceptionRequest(changeRequestID, teamID, requestedBy uuid.UUID, justification string, exceptionType ExceptionType, expiresAt *time.Time) *ExceptionRequest {
	now := time.Now()
	return &ExceptionRequest{
		ID:              uuid.New(),
		ChangeRequestID: changeRequestID,
		TeamID:          teamID,
		RequestedBy:     requestedBy,
		Justification:   justification,
		ExceptionType:   exceptionType,
		Status:          ExceptionPending,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Active reports whether the exception currently blocks enforcement:
// pending, or approved and not yet expired.
func (e *ExceptionRequest) Active(now time.Time) bool {
	switch e.Status {
	case ExceptionPending:
		return true
	case ExceptionApproved:
		if e.ExceptionType == ExceptionPermanent {
			return true
		}
		return e.ExpiresAt != nil && now.Before(*e.ExpiresAt)
	default:
		return false
	}
}
