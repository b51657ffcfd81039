package ruletree

import (
	"regexp"
	"strings"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// InboxConstraint restricts every job search to messages still in the inbox.
const InboxConstraint = "in:inbox"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Compile renders a tree as a Gmail search expression. Leaves become
// operator:value, the root group joins its children with its operator and
// nested groups are wrapped in braces.
func Compile(root *models.RuleNode) string {
	return compileNode(root, 0)
}

// SearchQuery combines a compiled expression with the inbox constraint.
func SearchQuery(expr string) string {
	if expr == "" {
		return InboxConstraint
	}
	return InboxConstraint + " (" + expr + ")"
}

func compileNode(n *models.RuleNode, depth int) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case models.RuleTypeGroup:
		parts := make([]string, 0, len(n.Rules))
		for _, child := range n.Rules {
			if part := compileNode(child, depth+1); part != "" {
				parts = append(parts, part)
			}
		}
		joined := strings.Join(parts, " "+n.Operator+" ")
		if depth == 0 {
			return joined
		}
		return "{" + joined + "}"
	case models.RuleTypeRule:
		return n.Operator + ":" + NormalizeValue(n.Value)
	default:
		return ""
	}
}

// NormalizeValue lower-cases a leaf value and replaces whitespace runs with
// a hyphen, matching Gmail's label naming in search.
func NormalizeValue(value string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
}
