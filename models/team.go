package models

import (
	"time"

	"github.com/google/uuid"
)

// Team owns team-scoped rules and all change requests detected in its
// tree. InheritGlobalRules controls whether non-forced global rules
// apply to the team; forced global rules always do.
type Team struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	InheritGlobalRules bool      `json:"inherit_global_rules" db:"inherit_global_rules"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Team model
func (Team) TableName() string {
	return "teams"
}

// NewTeam creates a new Team instance that inherits global rules.
func NewTeam(name string) *Team {
	now := time.Now()
	return &Team{
		ID:                 uuid.New(),
		Name:               name,
		InheritGlobalRules: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
