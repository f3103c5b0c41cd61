package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of state change being fanned out
type EventType string

const (
	EventRuleCreated        EventType = "rule.created"
	EventRuleUpdated        EventType = "rule.updated"
	EventRuleDeleted        EventType = "rule.deleted"
	EventRuleSubmitted      EventType = "rule.submitted"
	EventDecisionRecorded   EventType = "rule.decision_recorded"
	EventRuleApproved       EventType = "rule.approved"
	EventRuleRejected       EventType = "rule.rejected"
	EventChangeDetected     EventType = "change_request.detected"
	EventChangeApproved     EventType = "change_request.approved"
	EventChangeRejected     EventType = "change_request.rejected"
	EventChangeAutoReverted EventType = "change_request.auto_reverted"
	EventExceptionFiled     EventType = "exception.filed"
	EventExceptionGranted   EventType = "exception.granted"
	EventExceptionDenied    EventType = "exception.denied"
	EventExceptionExpired   EventType = "exception.expired"
	EventCategoryCreated    EventType = "category.created"
	EventCategoryDeleted    EventType = "category.deleted"
	EventTeamCreated        EventType = "team.created"
	EventTeamUpdated        EventType = "team.updated"
)

// Event is one state-change notification. Events are advisory: losing
// one never affects the underlying transition, which is already durable
// by the time the event is published.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       EventType              `json:"type"`
	EntityType string                 `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	TeamID     *uuid.UUID             `json:"team_id,omitempty"`
	ActorID    uuid.UUID              `json:"actor_id"`
	ActorName  string                 `json:"actor_name"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent creates an Event with a fresh ID and timestamp
func NewEvent(eventType EventType, entityType string, entityID uuid.UUID) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    make(map[string]interface{}),
		OccurredAt: time.Now(),
	}
}

// WithTeam sets the team scope
func (e *Event) WithTeam(teamID uuid.UUID) *Event {
	e.TeamID = &teamID
	return e
}

// WithActor sets the acting identity
func (e *Event) WithActor(actorID uuid.UUID, actorName string) *Event {
	e.ActorID = actorID
	e.ActorName = actorName
	return e
}

// WithPayload adds a payload field
func (e *Event) WithPayload(key string, value interface{}) *Event {
	e.Payload[key] = value
	return e
}
