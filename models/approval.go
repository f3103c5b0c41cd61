package models

import (
	"time"

	"github.com/google/uuid"
)

// Decision represents a single approver's verdict on a pending rule
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether the decision is one of the known values.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ApprovalRecord is one approver's decision on a rule. Records are
// immutable once created; at most one per (rule, user).
type ApprovalRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RuleID    uuid.UUID `json:"rule_id" db:"rule_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Decision  Decision  `json:"decision" db:"decision"`
	Comment   string    `json:"comment" db:"comment"` // required when decision = rejected
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ApprovalRecord model
func (ApprovalRecord) TableName() string {
	return "approval_records"
}

// NewApprovalRecord creates a new ApprovalRecord instance
func NewApprovalRecord(ruleID, userID uuid.UUID, decision Decision, comment string) *ApprovalRecord {
	return &ApprovalRecord{
		ID:        uuid.New(),
		RuleID:    ruleID,
		UserID:    userID,
		Decision:  decision,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
}

// ApprovalStatus is the derived quorum state of a rule. It is recomputed
// from the full record history and never stored.
type ApprovalStatus struct {
	RuleID        uuid.UUID         `json:"rule_id"`
	RequiredCount int               `json:"required_count"`
	CurrentCount  int               `json:"current_count"`
	Rejected      bool              `json:"rejected"`
	Approvals     []*ApprovalRecord `json:"approvals"`
}

// DeriveApprovalStatus folds a record history into the quorum state.
// The result depends only on the set of decisions, not their order:
// any rejection wins, else quorum is reached when the approval count
// meets requiredCount.
func DeriveApprovalStatus(ruleID uuid.UUID, requiredCount int, records []*ApprovalRecord) *ApprovalStatus {
	status := &ApprovalStatus{
		RuleID:        ruleID,
		RequiredCount: requiredCount,
		Approvals:     records,
	}
	for _, rec := range records {
		switch rec.Decision {
		case DecisionApproved:
			status.CurrentCount++
		case DecisionRejected:
			status.Rejected = true
		}
	}
	return status
}

// QuorumReached reports whether the approval count meets the quorum.
func (s *ApprovalStatus) QuorumReached() bool {
	return !s.Rejected && s.CurrentCount >= s.RequiredCount
}
