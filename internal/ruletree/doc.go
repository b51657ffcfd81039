// Package ruletree holds the rule-tree engine shared by job management and
// job execution: validation of submitted trees, conversion between the
// nested tree and its flat records, compilation into a mail search query and
// reconciliation of a resubmitted tree against stored records.
//
// Every function here is pure. Persistence and the mail provider live in
// the repository and gmail packages.
package ruletree

// MaxDepth is the deepest level a node may sit at; the root is depth 1.
const MaxDepth = 3

// MinGroupChildren is the minimum number of children a group must combine.
const MinGroupChildren = 2
