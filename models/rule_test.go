package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTargetLayerPrecedenceIndex(t *testing.T) {
	assert.Equal(t, 0, LayerOrganization.PrecedenceIndex())
	assert.Equal(t, 1, LayerTeam.PrecedenceIndex())
	assert.Equal(t, 2, LayerProject.PrecedenceIndex())
	assert.Equal(t, 3, TargetLayer("bogus").PrecedenceIndex())
}

func TestTargetLayerValid(t *testing.T) {
	assert.True(t, LayerOrganization.Valid())
	assert.True(t, LayerTeam.Valid())
	assert.True(t, LayerProject.Valid())
	assert.False(t, TargetLayer("global").Valid())
}

func TestRuleStatusValid(t *testing.T) {
	for _, s := range []RuleStatus{RuleStatusDraft, RuleStatusPending, RuleStatusApproved, RuleStatusRejected} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, RuleStatus("archived").Valid())
}

func TestEnforcementModeValid(t *testing.T) {
	assert.True(t, EnforcementBlock.Valid())
	assert.True(t, EnforcementTemporary.Valid())
	assert.True(t, EnforcementWarning.Valid())
	assert.False(t, EnforcementMode("soft").Valid())
}

func TestTriggerMatchesPath(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		filePath string
		want     bool
	}{
		{"exact match", "config/app.yaml", "config/app.yaml", true},
		{"glob match", "config/*.yaml", "config/app.yaml", true},
		{"glob does not cross separator", "config/*.yaml", "config/sub/app.yaml", false},
		{"double star prefix matches nested", "src/**", "src/internal/db/conn.go", true},
		{"double star prefix rejects sibling", "src/**", "lib/util.go", false},
		{"no match", "*.md", "main.go", false},
		{"empty file path never matches", "*.go", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := Trigger{Type: TriggerTypePath, Pattern: tt.pattern}
			assert.Equal(t, tt.want, trigger.Matches(MatchTarget{FilePath: tt.filePath}))
		})
	}
}

func TestTriggerMatchesContextAndTags(t *testing.T) {
	ctxTrigger := Trigger{Type: TriggerTypeContext, ContextTypes: []string{"security", "infra"}}
	assert.True(t, ctxTrigger.Matches(MatchTarget{ContextTypes: []string{"infra"}}))
	assert.False(t, ctxTrigger.Matches(MatchTarget{ContextTypes: []string{"docs"}}))
	assert.False(t, ctxTrigger.Matches(MatchTarget{}))

	tagTrigger := Trigger{Type: TriggerTypeTag, Tags: []string{"prod"}}
	assert.True(t, tagTrigger.Matches(MatchTarget{Tags: []string{"prod", "critical"}}))
	assert.False(t, tagTrigger.Matches(MatchTarget{Tags: []string{"staging"}}))

	unknown := Trigger{Type: TriggerType("regex"), Pattern: ".*"}
	assert.False(t, unknown.Matches(MatchTarget{FilePath: "main.go"}))
}

func TestNewRuleDefaults(t *testing.T) {
	creator := uuid.New()
	rule := NewRule("no secrets", "Never commit credentials.", LayerTeam, creator)

	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.Equal(t, RuleStatusDraft, rule.Status)
	assert.Equal(t, EnforcementWarning, rule.EnforcementMode)
	assert.True(t, rule.Overridable)
	assert.Equal(t, creator, rule.CreatedBy)
	assert.True(t, rule.IsGlobal())
}

func TestRuleLifecyclePredicates(t *testing.T) {
	rule := NewRule("r", "c", LayerProject, uuid.New())

	assert.True(t, rule.Editable())
	assert.False(t, rule.IsTerminal())

	rule.Status = RuleStatusPending
	assert.False(t, rule.Editable())
	assert.False(t, rule.IsTerminal())

	rule.Status = RuleStatusApproved
	assert.False(t, rule.Editable())
	assert.True(t, rule.IsTerminal())

	// Rejected rules are terminal but may be re-opened as a draft.
	rule.Status = RuleStatusRejected
	assert.True(t, rule.Editable())
	assert.True(t, rule.IsTerminal())
}

func TestRuleIsGlobal(t *testing.T) {
	rule := NewRule("r", "c", LayerOrganization, uuid.New())
	assert.True(t, rule.IsGlobal())

	teamID := uuid.New()
	rule.TeamID = &teamID
	assert.False(t, rule.IsGlobal())
}

func TestRuleEffectiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	rule := NewRule("r", "c", LayerTeam, uuid.New())
	assert.True(t, rule.EffectiveAt(now), "no window means always effective")

	rule.EffectiveStart = &future
	assert.False(t, rule.EffectiveAt(now))

	rule.EffectiveStart = &past
	rule.EffectiveEnd = &future
	assert.True(t, rule.EffectiveAt(now))

	rule.EffectiveEnd = &past
	assert.False(t, rule.EffectiveAt(now))
}

func TestRuleAppliesTo(t *testing.T) {
	rule := NewRule("r", "c", LayerTeam, uuid.New())
	assert.True(t, rule.AppliesTo(MatchTarget{FilePath: "anything.go"}), "trigger-less rules apply everywhere")

	rule.Triggers = []Trigger{
		{Type: TriggerTypePath, Pattern: "*.go"},
		{Type: TriggerTypeTag, Tags: []string{"prod"}},
	}
	assert.True(t, rule.AppliesTo(MatchTarget{FilePath: "main.go"}))
	assert.True(t, rule.AppliesTo(MatchTarget{FilePath: "README.md", Tags: []string{"prod"}}))
	assert.False(t, rule.AppliesTo(MatchTarget{FilePath: "README.md", Tags: []string{"dev"}}))
}
