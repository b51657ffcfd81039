package ruletree

import (
	"sort"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// Nest rebuilds a job's top-level rules from its flat records. Inactive
// records are ignored. Without any group record the leaves are returned as a
// flat list; otherwise exactly one root group must exist and the result
// holds only that root.
//
// Siblings are ordered with groups before leaves, then by ascending Order.
// An active record that cannot be reached from the root is corruption.
func Nest(records []models.JobRule) ([]*models.RuleNode, error) {
	active := make([]models.JobRule, 0, len(records))
	hasGroup := false
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		active = append(active, r)
		if r.Type == models.RuleTypeGroup {
			hasGroup = true
		}
	}

	if !hasGroup {
		nodes := make([]*models.RuleNode, 0, len(active))
		for _, r := range active {
			nodes = append(nodes, toNode(r))
		}
		sortSiblings(nodes)
		return nodes, nil
	}

	var roots []models.JobRule
	children := make(map[string][]models.JobRule)
	for _, r := range active {
		if r.IsRoot() {
			if r.Type == models.RuleTypeGroup {
				roots = append(roots, r)
			}
			continue
		}
		children[r.ParentID()] = append(children[r.ParentID()], r)
	}

	if len(roots) != 1 {
		return nil, &CorruptionError{JobID: active[0].JobID, Reason: rootCountReason(len(roots))}
	}

	n := &nester{children: children, visited: make(map[string]struct{}, len(active))}
	root, err := n.build(roots[0])
	if err != nil {
		return nil, err
	}
	if len(n.visited) < len(active) {
		for _, r := range active {
			if _, ok := n.visited[r.ID]; !ok {
				return nil, &CorruptionError{JobID: r.JobID, Reason: "rule " + r.ID + " is not reachable from the root group"}
			}
		}
	}
	return []*models.RuleNode{root}, nil
}

type nester struct {
	children map[string][]models.JobRule
	visited  map[string]struct{}
}

func (n *nester) build(r models.JobRule) (*models.RuleNode, error) {
	if _, ok := n.visited[r.ID]; ok {
		return nil, &CorruptionError{JobID: r.JobID, Reason: "rule " + r.ID + " is reachable more than once"}
	}
	n.visited[r.ID] = struct{}{}

	node := toNode(r)
	if r.Type != models.RuleTypeGroup {
		return node, nil
	}
	kids := n.children[r.ID]
	node.Rules = make([]*models.RuleNode, 0, len(kids))
	for _, kid := range kids {
		child, err := n.build(kid)
		if err != nil {
			return nil, err
		}
		node.Rules = append(node.Rules, child)
	}
	sortSiblings(node.Rules)
	return node, nil
}

// sortSiblings places groups ahead of leaves regardless of Order and sorts
// by Order otherwise.
func sortSiblings(nodes []*models.RuleNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsGroup() != b.IsGroup() {
			return a.IsGroup()
		}
		return a.Order < b.Order
	})
}

func toNode(r models.JobRule) *models.RuleNode {
	node := &models.RuleNode{
		ID:       r.ID,
		JobID:    r.JobID,
		Type:     r.Type,
		Order:    r.Order,
		Operator: r.Operator,
		Value:    r.ValueString(),
	}
	if !r.IsRoot() {
		groupID := r.ParentID()
		node.GroupID = &groupID
	}
	return node
}

func rootCountReason(count int) string {
	if count == 0 {
		return "no root group"
	}
	return "multiple root groups"
}
