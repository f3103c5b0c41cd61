package rules

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
)

// ResolveEffective computes the rules in force for a team against a
// match target at a point in time. Candidates are the team's approved
// rules plus approved global rules; the merge then
//
//  1. drops rules outside their effective window or not matching the
//     target,
//  2. drops global non-forced rules when the team opted out of global
//     inheritance (forced global rules always stay),
//  3. drops rules overridden by a higher-precedence non-overridable
//     rule on the same trigger surface,
//  4. orders the result by layer precedence, then priority weight
//     descending, then creation time ascending.
func (s *Service) ResolveEffective(ctx context.Context, teamID uuid.UUID, target models.MatchTarget, now time.Time) ([]*models.Rule, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTeamNotFound
		}
		return nil, services.WrapInternal("failed to load team", err)
	}

	candidates, err := s.ruleRepo.ListCandidates(ctx, teamID)
	if err != nil {
		return nil, services.WrapInternal("failed to load candidate rules", err)
	}

	var applicable []*models.Rule
	for _, rule := range candidates {
		if !rule.EffectiveAt(now) {
			continue
		}
		if !rule.AppliesTo(target) {
			continue
		}
		if rule.IsGlobal() && !rule.Force && !team.InheritGlobalRules {
			continue
		}
		applicable = append(applicable, rule)
	}

	effective := suppressOverridden(applicable)

	sort.SliceStable(effective, func(i, j int) bool {
		a, b := effective[i], effective[j]
		if pa, pb := mergeRank(a), mergeRank(b); pa != pb {
			return pa < pb
		}
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight > b.PriorityWeight
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return effective, nil
}

// mergeRank orders rules for the merge: forced global rules outrank
// every layer, then layer precedence applies.
func mergeRank(r *models.Rule) int {
	if r.IsGlobal() && r.Force {
		return -1
	}
	return r.TargetLayer.PrecedenceIndex()
}

// suppressOverridden removes every rule that a higher-ranked
// non-overridable rule covers on the same trigger surface.
func suppressOverridden(rules []*models.Rule) []*models.Rule {
	var out []*models.Rule
	for _, candidate := range rules {
		overridden := false
		for _, other := range rules {
			if other == candidate {
				continue
			}
			if other.Overridable {
				continue
			}
			if mergeRank(other) >= mergeRank(candidate) {
				continue
			}
			if sameTriggerSurface(candidate, other) {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, candidate)
		}
	}
	return out
}

// sameTriggerSurface reports whether two rules claim an overlapping
// trigger surface: a shared path pattern, a common context type, a
// common tag, or both being trigger-less (always-on).
func sameTriggerSurface(a, b *models.Rule) bool {
	if len(a.Triggers) == 0 && len(b.Triggers) == 0 {
		return true
	}
	for _, ta := range a.Triggers {
		for _, tb := range b.Triggers {
			if ta.Type != tb.Type {
				continue
			}
			switch ta.Type {
			case models.TriggerTypePath:
				if ta.Pattern == tb.Pattern {
					return true
				}
			case models.TriggerTypeContext:
				if stringsIntersect(ta.ContextTypes, tb.ContextTypes) {
					return true
				}
			case models.TriggerTypeTag:
				if stringsIntersect(ta.Tags, tb.Tags) {
					return true
				}
			}
		}
	}
	return false
}

func stringsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
