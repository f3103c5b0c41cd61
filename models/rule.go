package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TargetLayer represents the governance layer a rule is pinned to.
// Lower precedence index wins: organization overrides team overrides project.
type TargetLayer string

const (
	LayerOrganization TargetLayer = "organization"
	LayerTeam         TargetLayer = "team"
	LayerProject      TargetLayer = "project"
)

// PrecedenceIndex returns the merge ordering for the layer (lower wins).
func (l TargetLayer) PrecedenceIndex() int {
	switch l {
	case LayerOrganization:
		return 0
	case LayerTeam:
		return 1
	case LayerProject:
		return 2
	default:
		return 3
	}
}

// Valid reports whether the layer is one of the known values.
func (l TargetLayer) Valid() bool {
	return l == LayerOrganization || l == LayerTeam || l == LayerProject
}

// RuleStatus represents the lifecycle state of a rule
type RuleStatus string

const (
	RuleStatusDraft    RuleStatus = "draft"
	RuleStatusPending  RuleStatus = "pending"
	RuleStatusApproved RuleStatus = "approved"
	RuleStatusRejected RuleStatus = "rejected"
)

// Valid reports whether the status is a known lifecycle state
func (s RuleStatus) Valid() bool {
	return s == RuleStatusDraft || s == RuleStatusPending ||
		s == RuleStatusApproved || s == RuleStatusRejected
}

// EnforcementMode describes how a detected unauthorized change is treated
type EnforcementMode string

const (
	// EnforcementBlock: the change is reverted immediately by the external
	// detector; the change request exists for admin review only.
	EnforcementBlock EnforcementMode = "block"

	// EnforcementTemporary: the change is tolerated until timeout_at, then
	// auto-reverted unless a human acts first.
	EnforcementTemporary EnforcementMode = "temporary"

	// EnforcementWarning: the change stays applied; the request only flags
	// it for review.
	EnforcementWarning EnforcementMode = "warning"
)

// Valid reports whether the mode is one of the known values.
func (m EnforcementMode) Valid() bool {
	return m == EnforcementBlock || m == EnforcementTemporary || m == EnforcementWarning
}

// TriggerType classifies the matching condition of a trigger
type TriggerType string

const (
	TriggerTypePath    TriggerType = "path"
	TriggerTypeContext TriggerType = "context"
	TriggerTypeTag     TriggerType = "tag"
)

// Trigger is a single matching condition. A rule applies to a target when
// any of its triggers matches; a rule with no triggers always applies.
type Trigger struct {
	Type         TriggerType `json:"type"`
	Pattern      string      `json:"pattern,omitempty"`       // path glob, for type=path
	ContextTypes []string    `json:"context_types,omitempty"` // for type=context
	Tags         []string    `json:"tags,omitempty"`          // for type=tag
}

// MatchTarget is the surface a rule is matched against.
type MatchTarget struct {
	FilePath     string
	ContextTypes []string
	Tags         []string
}

// Matches reports whether this trigger matches the target.
func (t Trigger) Matches(target MatchTarget) bool {
	switch t.Type {
	case TriggerTypePath:
		if target.FilePath == "" {
			return false
		}
		if ok, err := path.Match(t.Pattern, target.FilePath); err == nil && ok {
			return true
		}
		// Allow directory-prefix patterns like "src/**" to match nested paths.
		if strings.HasSuffix(t.Pattern, "/**") {
			return strings.HasPrefix(target.FilePath, strings.TrimSuffix(t.Pattern, "**"))
		}
		return false
	case TriggerTypeContext:
		return anyOverlap(t.ContextTypes, target.ContextTypes)
	case TriggerTypeTag:
		return anyOverlap(t.Tags, target.Tags)
	default:
		return false
	}
}

func anyOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Rule represents a single governance rule: policy text plus the metadata
// that controls where it applies and how violations are enforced.
type Rule struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description" db:"description"`
	Content     string      `json:"content" db:"content"`
	TargetLayer TargetLayer `json:"target_layer" db:"target_layer"`

	// TeamID is nil for global rules. Global rules may carry Force, which
	// applies them even to teams that opted out of global inheritance.
	TeamID *uuid.UUID `json:"team_id,omitempty" db:"team_id"`
	Force  bool       `json:"force" db:"force"`

	Status                RuleStatus      `json:"status" db:"status"`
	EnforcementMode       EnforcementMode `json:"enforcement_mode" db:"enforcement_mode"`
	TemporaryTimeoutHours int             `json:"temporary_timeout_hours" db:"temporary_timeout_hours"`

	PriorityWeight int  `json:"priority_weight" db:"priority_weight"`
	Overridable    bool `json:"overridable" db:"overridable"`

	CategoryID *uuid.UUID `json:"category_id,omitempty" db:"category_id"`

	EffectiveStart *time.Time `json:"effective_start,omitempty" db:"effective_start"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty" db:"effective_end"`

	Triggers []Trigger `json:"triggers" db:"triggers"`

	CreatedBy   uuid.UUID  `json:"created_by" db:"created_by"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "rules"
}

// NewRule creates a new draft Rule instance
func NewRule(name, content string, layer TargetLayer, createdBy uuid.UUID) *Rule {
	now := time.Now()
	return &Rule{
		ID:              uuid.New(),
		Name:            name,
		Content:         content,
		TargetLayer:     layer,
		Status:          RuleStatusDraft,
		EnforcementMode: EnforcementWarning,
		Overridable:     true,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsGlobal reports whether the rule is global (not owned by a team).
func (r *Rule) IsGlobal() bool {
	return r.TeamID == nil
}

// IsTerminal reports whether the rule is in an append-only terminal state.
func (r *Rule) IsTerminal() bool {
	return r.Status == RuleStatusApproved || r.Status == RuleStatusRejected
}

// Editable reports whether the rule content may still be mutated.
// Terminal rules are append-only; re-editing spawns a fresh draft.
func (r *Rule) Editable() bool {
	return r.Status == RuleStatusDraft || r.Status == RuleStatusRejected
}

// EffectiveAt reports whether now falls inside the rule's validity window.
func (r *Rule) EffectiveAt(now time.Time) bool {
	if r.EffectiveStart != nil && now.Before(*r.EffectiveStart) {
		return false
	}
	if r.EffectiveEnd != nil && now.After(*r.EffectiveEnd) {
		return false
	}
	return true
}

// AppliesTo reports whether the rule matches the target. A rule with no
// triggers applies unconditionally.
func (r *Rule) AppliesTo(target MatchTarget) bool {
	if len(r.Triggers) == 0 {
		return true
	}
	for _, t := range r.Triggers {
		if t.Matches(target) {
			return true
		}
	}
	return false
}
