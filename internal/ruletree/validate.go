package ruletree

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

var periodPattern = regexp.MustCompile(`^\d+(D|M|Y)$`)

// Validate checks the shape of a submitted rule tree. A job carries exactly
// one top-level rule. The first violation found is returned as a
// *ValidationError.
func Validate(rules []*models.RuleNode) error {
	if len(rules) != 1 {
		return invalidf("a job must have exactly one top-level rule, got %d", len(rules))
	}
	v := &validator{seen: make(map[string]struct{})}
	return v.node(rules[0], 1)
}

type validator struct {
	seen map[string]struct{}
}

func (v *validator) node(n *models.RuleNode, depth int) error {
	if n == nil {
		return invalidf("rule must not be null")
	}
	if depth > MaxDepth {
		return invalidf("rules exceed maximum depth of %d", MaxDepth)
	}
	if n.ID != "" {
		parsed, err := uuid.Parse(n.ID)
		if err != nil {
			return invalidf("rule id %q is not a valid UUID", n.ID)
		}
		// Stored ids are compared as strings, so only the lowercase hyphenated form is accepted.
		if parsed.String() != n.ID {
			return invalidf("rule id %q must be written as %s", n.ID, parsed.String())
		}
		if _, dup := v.seen[n.ID]; dup {
			return invalidf("rule id %s appears more than once", n.ID)
		}
		v.seen[n.ID] = struct{}{}
	}

	switch n.Type {
	case models.RuleTypeGroup:
		return v.group(n, depth)
	case models.RuleTypeRule:
		return leaf(n)
	default:
		return invalidf("unknown rule type %q", n.Type)
	}
}

func (v *validator) group(n *models.RuleNode, depth int) error {
	switch models.GroupOperator(n.Operator) {
	case models.GroupOperatorAnd, models.GroupOperatorOr:
	default:
		return invalidf("group operator must be AND or OR, got %q", n.Operator)
	}
	if len(n.Rules) < MinGroupChildren {
		return invalidf("a group requires at least %d rules", MinGroupChildren)
	}
	orders := make(map[int]struct{}, len(n.Rules))
	for _, child := range n.Rules {
		if child == nil {
			return invalidf("rule must not be null")
		}
		if _, dup := orders[child.Order]; dup {
			return invalidf("order %d is used by more than one rule in the same group", child.Order)
		}
		orders[child.Order] = struct{}{}
		if err := v.node(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func leaf(n *models.RuleNode) error {
	op := models.RuleOperator(n.Operator)
	switch op {
	case models.RuleOperatorFrom, models.RuleOperatorLabel, models.RuleOperatorOlderThan, models.RuleOperatorNewerThan:
	default:
		return invalidf("unsupported rule operator %q", n.Operator)
	}
	if n.Value == "" {
		return invalidf("%s rule requires a value", op)
	}
	if op.IsPeriod() && !periodPattern.MatchString(n.Value) {
		return invalidf("invalid period format %q, expected digits followed by D, M or Y", n.Value)
	}
	if len(n.Rules) > 0 {
		return invalidf("%s rule cannot contain nested rules", op)
	}
	return nil
}
