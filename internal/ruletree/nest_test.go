package ruletree

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

func TestNestGroupSortsBeforeRuleRegardlessOfOrder(t *testing.T) {
	records := []models.JobRule{
		{ID: "leaf", JobID: "j", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("a"), Order: 1, IsActive: true},
		{ID: "root", JobID: "j", Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
		{ID: "inner", JobID: "j", GroupID: strPtr("root"), Type: models.RuleTypeGroup, Operator: "OR", Order: 5, IsActive: true},
		{ID: "x", JobID: "j", GroupID: strPtr("inner"), Type: models.RuleTypeRule, Operator: "label", Value: strPtr("x"), Order: 2, IsActive: true},
		{ID: "y", JobID: "j", GroupID: strPtr("inner"), Type: models.RuleTypeRule, Operator: "label", Value: strPtr("y"), Order: 1, IsActive: true},
	}

	rules, err := Nest(records)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	root := rules[0]
	assert.Equal(t, "root", root.ID)
	assert.Nil(t, root.GroupID)
	require.Len(t, root.Rules, 2)
	assert.Equal(t, "inner", root.Rules[0].ID)
	assert.Equal(t, "leaf", root.Rules[1].ID)
	require.Len(t, root.Rules[0].Rules, 2)
	assert.Equal(t, "y", root.Rules[0].Rules[0].ID)
	assert.Equal(t, "x", root.Rules[0].Rules[1].ID)
	assert.Equal(t, "inner", *root.Rules[0].Rules[0].GroupID)
}

func TestNestIgnoresInactiveRecords(t *testing.T) {
	records := []models.JobRule{
		{ID: "root", Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
		{ID: "a", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("a"), Order: 1, IsActive: true},
		{ID: "b", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("b"), Order: 2, IsActive: true},
		{ID: "gone", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("c"), Order: 3, IsActive: false},
		{ID: "old-root", Type: models.RuleTypeGroup, Operator: "OR", IsActive: false},
	}
	rules, err := Nest(records)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Len(t, rules[0].Rules, 2)
}

func TestNestWithoutGroupsReturnsFlatList(t *testing.T) {
	records := []models.JobRule{
		{ID: "b", Type: models.RuleTypeRule, Operator: "from", Value: strPtr("b"), Order: 2, IsActive: true},
		{ID: "a", Type: models.RuleTypeRule, Operator: "from", Value: strPtr("a"), Order: 1, IsActive: true},
	}
	rules, err := Nest(records)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "b", rules[1].ID)

	empty, err := Nest(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNestRootCountCorruption(t *testing.T) {
	noRoot := []models.JobRule{
		{ID: "g", JobID: "j", GroupID: strPtr("missing"), Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
	}
	_, err := Nest(noRoot)
	var corrupt *CorruptionError
	require.True(t, errors.As(err, &corrupt))
	assert.Contains(t, err.Error(), "no root group")

	twoRoots := []models.JobRule{
		{ID: "g1", JobID: "j", Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
		{ID: "g2", JobID: "j", Type: models.RuleTypeGroup, Operator: "OR", IsActive: true},
	}
	_, err = Nest(twoRoots)
	require.True(t, errors.As(err, &corrupt))
	assert.Contains(t, err.Error(), "multiple root groups")
	assert.Equal(t, "j", corrupt.JobID)
}

func TestNestDetectsCycles(t *testing.T) {
	records := []models.JobRule{
		{ID: "root", Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
		{ID: "a", GroupID: strPtr("root"), Type: models.RuleTypeGroup, Operator: "OR", Order: 1, IsActive: true},
		{ID: "b", GroupID: strPtr("a"), Type: models.RuleTypeGroup, Operator: "OR", Order: 1, IsActive: true},
		{ID: "a", GroupID: strPtr("b"), Type: models.RuleTypeGroup, Operator: "OR", Order: 1, IsActive: true},
	}
	_, err := Nest(records)
	var corrupt *CorruptionError
	require.True(t, errors.As(err, &corrupt))
}

func TestNestRejectsUnreachableRecords(t *testing.T) {
	base := []models.JobRule{
		{ID: "root", JobID: "j", Type: models.RuleTypeGroup, Operator: "AND", IsActive: true},
		{ID: "a", JobID: "j", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("a"), Order: 1, IsActive: true},
		{ID: "b", JobID: "j", GroupID: strPtr("root"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("b"), Order: 2, IsActive: true},
	}
	cases := map[string]models.JobRule{
		"orphaned child":  {ID: "orphan", JobID: "j", GroupID: strPtr("deleted-group"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("c"), Order: 3, IsActive: true},
		"top-level leaf":  {ID: "stray", JobID: "j", Type: models.RuleTypeRule, Operator: "label", Value: strPtr("x"), IsActive: true},
		"child of a leaf": {ID: "under-leaf", JobID: "j", GroupID: strPtr("a"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("d"), IsActive: true},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			records := append(append([]models.JobRule{}, base...), extra)
			_, err := Nest(records)
			var corrupt *CorruptionError
			require.True(t, errors.As(err, &corrupt))
			assert.Equal(t, "j", corrupt.JobID)
			assert.Contains(t, err.Error(), extra.ID)
		})
	}

	inactive := append(append([]models.JobRule{}, base...), models.JobRule{ID: "old", JobID: "j", GroupID: strPtr("gone"), Type: models.RuleTypeRule, Operator: "from", Value: strPtr("z"), IsActive: false})
	_, err := Nest(inactive)
	assert.NoError(t, err)
}

func TestNestFlattenRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("nest(flatten(t)) preserves structure", prop.ForAll(
		func(seed int64) bool {
			tree := randomTree(rand.New(rand.NewSource(seed)), 1)
			if err := Validate([]*models.RuleNode{tree}); err != nil {
				t.Logf("generator produced invalid tree: %v", err)
				return false
			}
			records := Flatten(tree, "user", "job", nil)
			// emission order carries no structure
			rand.New(rand.NewSource(seed)).Shuffle(len(records), func(i, j int) {
				records[i], records[j] = records[j], records[i]
			})
			rules, err := Nest(records)
			if err != nil || len(rules) != 1 {
				return false
			}
			return sameShape(tree, rules[0])
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// randomTree builds a valid tree whose siblings already follow the nesting
// order: groups first, then leaves, each with ascending order values.
func randomTree(r *rand.Rand, depth int) *models.RuleNode {
	if depth == MaxDepth || (depth > 1 && r.Intn(3) == 0) {
		return randomLeaf(r)
	}
	ops := []models.GroupOperator{models.GroupOperatorAnd, models.GroupOperatorOr}
	n := &models.RuleNode{Type: models.RuleTypeGroup, Operator: string(ops[r.Intn(2)])}
	count := MinGroupChildren + r.Intn(3)
	var groups, leaves []*models.RuleNode
	for i := 0; i < count; i++ {
		child := randomTree(r, depth+1)
		if child.IsGroup() {
			groups = append(groups, child)
		} else {
			leaves = append(leaves, child)
		}
	}
	order := r.Intn(3)
	for _, child := range append(groups, leaves...) {
		order += 1 + r.Intn(4)
		child.Order = order
		n.Rules = append(n.Rules, child)
	}
	return n
}

func randomLeaf(r *rand.Rand) *models.RuleNode {
	switch r.Intn(4) {
	case 0:
		return &models.RuleNode{Type: models.RuleTypeRule, Operator: string(models.RuleOperatorFrom), Value: "sender@example.com"}
	case 1:
		return &models.RuleNode{Type: models.RuleTypeRule, Operator: string(models.RuleOperatorLabel), Value: "Some Label"}
	case 2:
		return &models.RuleNode{Type: models.RuleTypeRule, Operator: string(models.RuleOperatorOlderThan), Value: "30D"}
	default:
		return &models.RuleNode{Type: models.RuleTypeRule, Operator: string(models.RuleOperatorNewerThan), Value: "2M"}
	}
}

func sameShape(want, got *models.RuleNode) bool {
	if want.Type != got.Type || want.Operator != got.Operator || want.Value != got.Value || want.Order != got.Order {
		return false
	}
	if len(want.Rules) != len(got.Rules) {
		return false
	}
	for i := range want.Rules {
		if !sameShape(want.Rules[i], got.Rules[i]) {
			return false
		}
	}
	return true
}
