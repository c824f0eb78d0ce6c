package pruning

import (
	"fmt"

	"github.com/rcliao/brightmatter/internal/model"
)

const day = 24 * 60 * 60 * 1000 // milliseconds

// DefaultPolicies returns the built-in retention policies: delete after 90
// days, delete below 0.1 relevance, compress above 10KB, and a disabled
// redundancy policy.
func DefaultPolicies() []model.PruningPolicy {
	return []model.PruningPolicy{
		{
			ID:       "age_based",
			Name:     "Age-Based Pruning",
			Enabled:  true,
			Priority: 1,
			Rules: []model.PruningRule{{
				Type:      model.RuleAge,
				Condition: model.RuleCondition{Operator: model.OpGT, Value: 90 * day, Threshold: 0.8},
				Action:    model.ActionDelete,
				Weight:    1.0,
			}},
		},
		{
			ID:       "relevance_based",
			Name:     "Relevance-Based Pruning",
			Enabled:  true,
			Priority: 2,
			Rules: []model.PruningRule{{
				Type:      model.RuleRelevance,
				Condition: model.RuleCondition{Operator: model.OpLT, Value: 0.1, Threshold: 0.1},
				Action:    model.ActionDelete,
				Weight:    0.8,
			}},
		},
		{
			ID:       "size_based",
			Name:     "Size-Based Pruning",
			Enabled:  true,
			Priority: 3,
			Rules: []model.PruningRule{{
				Type:      model.RuleSize,
				Condition: model.RuleCondition{Operator: model.OpGT, Value: 10000, Threshold: 0.5},
				Action:    model.ActionCompress,
				Weight:    0.6,
			}},
		},
		{
			ID:       "redundancy_based",
			Name:     "Redundancy-Based Pruning",
			Enabled:  false,
			Priority: 4,
			Rules: []model.PruningRule{{
				Type:      model.RuleRedundancy,
				Condition: model.RuleCondition{Operator: model.OpGT, Value: 0.9, Threshold: 0.9},
				Action:    model.ActionDelete,
				Weight:    0.7,
			}},
		},
	}
}

var (
	validRuleTypes = map[model.RuleType]bool{
		model.RuleAge: true, model.RuleRelevance: true, model.RuleSize: true,
		model.RuleRedundancy: true, model.RuleUserRequest: true,
	}
	validOperators = map[model.Operator]bool{
		model.OpGT: true, model.OpLT: true, model.OpEQ: true,
		model.OpContains: true, model.OpNotContains: true,
	}
	validActions = map[model.Action]bool{
		model.ActionDelete: true, model.ActionCompress: true,
		model.ActionArchive: true, model.ActionFlag: true,
	}
)

// ValidatePolicy checks ids, rule types, operators and actions.
func ValidatePolicy(p model.PruningPolicy) error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	for i, r := range p.Rules {
		if !validRuleTypes[r.Type] {
			return fmt.Errorf("policy %s rule %d: unknown type %q", p.ID, i, r.Type)
		}
		if !validOperators[r.Condition.Operator] {
			return fmt.Errorf("policy %s rule %d: unknown operator %q", p.ID, i, r.Condition.Operator)
		}
		if !validActions[r.Action] {
			return fmt.Errorf("policy %s rule %d: unknown action %q", p.ID, i, r.Action)
		}
	}
	return nil
}

// ValidateDecayFunction reports whether f names a known curve.
func ValidateDecayFunction(f model.DecayFunction) error {
	switch f {
	case model.DecayLinear, model.DecayExponential, model.DecayLogarithmic:
		return nil
	}
	return fmt.Errorf("unknown decay function %q", f)
}
