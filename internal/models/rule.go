package models

import "time"

// RuleType discriminates group nodes from leaf predicates.
type RuleType string

const (
	RuleTypeGroup RuleType = "group"
	RuleTypeRule  RuleType = "rule"
)

// GroupOperator combines the children of a group node.
type GroupOperator string

const (
	GroupOperatorAnd GroupOperator = "AND"
	GroupOperatorOr  GroupOperator = "OR"
)

// RuleOperator is the predicate evaluated by a leaf node.
type RuleOperator string

const (
	RuleOperatorFrom      RuleOperator = "from"
	RuleOperatorLabel     RuleOperator = "label"
	RuleOperatorOlderThan RuleOperator = "older_than"
	RuleOperatorNewerThan RuleOperator = "newer_than"
)

// IsPeriod reports whether the operator expects a period value such as 7D.
func (o RuleOperator) IsPeriod() bool {
	return o == RuleOperatorOlderThan || o == RuleOperatorNewerThan
}

// RuleNode is one node of a job's rule tree. Type selects the variant:
// groups use Operator as their boolean operator and carry Rules, leaves use
// Operator as the predicate and carry Value.
type RuleNode struct {
	ID       string      `json:"id"`
	JobID    string      `json:"job_id,omitempty"`
	Type     RuleType    `json:"type"`
	GroupID  *string     `json:"group_id"`
	Order    int         `json:"order"`
	Operator string      `json:"operator"`
	Value    string      `json:"value,omitempty"`
	Rules    []*RuleNode `json:"rules,omitempty"`
}

// IsGroup reports whether the node is a boolean group.
func (n *RuleNode) IsGroup() bool {
	return n != nil && n.Type == RuleTypeGroup
}

// JobRule is the persisted, non-recursive form of a RuleNode. GroupID points
// at the parent group and is nil for the root.
type JobRule struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	JobID     string    `db:"job_id" json:"job_id"`
	GroupID   *string   `db:"group_id" json:"group_id"`
	Type      RuleType  `db:"type" json:"type"`
	Order     int       `db:"sort_order" json:"order"`
	Operator  string    `db:"operator" json:"operator"`
	Value     *string   `db:"value" json:"value,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsRoot reports whether the record has no parent group.
func (r JobRule) IsRoot() bool {
	return r.GroupID == nil || *r.GroupID == ""
}

// ParentID returns the parent group id or an empty string for roots.
func (r JobRule) ParentID() string {
	if r.GroupID == nil {
		return ""
	}
	return *r.GroupID
}

// ValueString returns the leaf value or an empty string.
func (r JobRule) ValueString() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}
