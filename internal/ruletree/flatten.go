package ruletree

import (
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// Flatten converts a tree into flat records in depth-first pre-order with
// siblings in ascending order. Nodes without an id receive one from newID
// (uuid.NewString when nil); existing ids are kept. The root's GroupID is
// nil and every other record points at its parent. The input is not
// modified.
//
// Emission order is for readability only: Nest rebuilds structure from
// GroupID and Order alone.
func Flatten(root *models.RuleNode, userID, jobID string, newID func() string) []models.JobRule {
	if root == nil {
		return nil
	}
	if newID == nil {
		newID = uuid.NewString
	}
	f := &flattener{userID: userID, jobID: jobID, newID: newID}
	f.walk(root, nil)
	return f.out
}

type flattener struct {
	userID string
	jobID  string
	newID  func() string
	out    []models.JobRule
}

func (f *flattener) walk(n *models.RuleNode, parentID *string) {
	id := n.ID
	if id == "" {
		id = f.newID()
	}
	record := models.JobRule{
		ID:       id,
		UserID:   f.userID,
		JobID:    f.jobID,
		GroupID:  parentID,
		Type:     n.Type,
		Order:    n.Order,
		Operator: n.Operator,
		IsActive: true,
	}
	if n.Type == models.RuleTypeRule {
		value := n.Value
		record.Value = &value
	}
	f.out = append(f.out, record)

	if n.Type != models.RuleTypeGroup {
		return
	}
	children := make([]*models.RuleNode, 0, len(n.Rules))
	for _, child := range n.Rules {
		if child != nil {
			children = append(children, child)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Order < children[j].Order
	})
	groupID := id
	for _, child := range children {
		f.walk(child, &groupID)
	}
}
