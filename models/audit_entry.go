package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of state transition being audited
type AuditAction string

const (
	AuditActionCreated         AuditAction = "created"
	AuditActionUpdated         AuditAction = "updated"
	AuditActionDeleted         AuditAction = "deleted"
	AuditActionSubmitted       AuditAction = "submitted"
	AuditActionApproved        AuditAction = "approved"
	AuditActionRejected        AuditAction = "rejected"
	AuditActionAutoReverted    AuditAction = "auto_reverted"
	AuditActionExceptionFiled  AuditAction = "exception_filed"
	AuditActionExceptionGrant  AuditAction = "exception_granted"
	AuditActionExceptionDenied AuditAction = "exception_denied"
	AuditActionExceptionExpire AuditAction = "exception_expired"
	AuditActionDeactivated     AuditAction = "deactivated"
	AuditActionRoleAssigned    AuditAction = "role_assigned"
)

// EntityType values used across the audit trail.
const (
	EntityTypeRule          = "rule"
	EntityTypeChangeRequest = "change_request"
	EntityTypeException     = "exception_request"
	EntityTypeCategory      = "category"
	EntityTypeTeam          = "team"
)

// FieldChange is the old/new pair recorded for a single changed field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// AuditEntry is one immutable record of a state transition on any
// governed entity. Entries are append-only; the diff engine reconstructs
// readable deltas from them on demand and never mutates them.
type AuditEntry struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	EntityType string                 `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id" db:"entity_id"`
	Action     AuditAction            `json:"action" db:"action"`
	ActorID    uuid.UUID              `json:"actor_id" db:"actor_id"`
	ActorName  string                 `json:"actor_name" db:"actor_name"`
	Changes    map[string]FieldChange `json:"changes" db:"changes"`   // JSONB
	Metadata   json.RawMessage        `json:"metadata" db:"metadata"` // JSONB
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// NewAuditEntry creates a new AuditEntry instance
func NewAuditEntry(entityType string, entityID uuid.UUID, action AuditAction, actorID uuid.UUID, actorName string) *AuditEntry {
	return &AuditEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		ActorName:  actorName,
		Changes:    make(map[string]FieldChange),
		CreatedAt:  time.Now(),
	}
}

// WithChanges sets the field-level diff
func (a *AuditEntry) WithChanges(changes map[string]FieldChange) *AuditEntry {
	a.Changes = changes
	return a
}

// WithMetadata sets free-form metadata
func (a *AuditEntry) WithMetadata(metadata interface{}) *AuditEntry {
	if data, err := json.Marshal(metadata); err == nil {
		a.Metadata = data
	}
	return a
}
