package ruletree

import "github.com/noah-isme/inbox-rules-api/internal/models"

func group(op models.GroupOperator, order int, children ...*models.RuleNode) *models.RuleNode {
	return &models.RuleNode{Type: models.RuleTypeGroup, Operator: string(op), Order: order, Rules: children}
}

func leafNode(op models.RuleOperator, value string, order int) *models.RuleNode {
	return &models.RuleNode{Type: models.RuleTypeRule, Operator: string(op), Value: value, Order: order}
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + string(rune('a'+n-1))
	}
}

func strPtr(v string) *string {
	return &v
}
