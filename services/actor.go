package services

import "github.com/google/uuid"

// Actor identifies who performed a mutating operation. Handlers build it
// from the authenticated claims; the sweeper uses SystemActor.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// SystemActor is the actor recorded for machine-triggered transitions
// (auto-revert, exception expiry).
var SystemActor = Actor{ID: uuid.Nil, Name: "system"}
