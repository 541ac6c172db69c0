package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/rules"
)

func defaultCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	c, err := rules.NewCatalog(rules.DefaultDefinitions())
	require.NoError(t, err)
	return c
}

func cls(complexity classifier.Complexity) classifier.Classification {
	return classifier.Classification{
		ProjectType: "api",
		Complexity:  complexity,
		Confidence:  0.8,
		Source:      classifier.SourceAI,
	}
}

func stageNames(p Plan) []string {
	var names []string
	for _, s := range p.Stages {
		names = append(names, s.Name)
	}
	return names
}

func TestGenerate_StageTemplates(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	tests := []struct {
		complexity classifier.Complexity
		want       []string
	}{
		{classifier.ComplexityLow, []string{"implementation", "verification"}},
		{classifier.ComplexityMedium, []string{"planning", "implementation", "verification", "review"}},
		{classifier.ComplexityHigh, []string{"planning", "implementation", "verification", "review"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.complexity), func(t *testing.T) {
			plan, err := g.Generate(catalog, cls(tt.complexity), []string{"baseline-policy"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stageNames(plan))
		})
	}
}

func TestGenerate_CategoryStageAssignment(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	plan, err := g.Generate(catalog, cls(classifier.ComplexityHigh), []string{
		"migration-safety", // architecture -> planning
		"rest-conventions", // api -> implementation
		"test-coverage",    // testing -> verification
		"secure-auth",      // security -> review
	})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 4)

	assert.Equal(t, []string{"migration-safety"}, plan.Stages[0].RuleIDs)
	assert.Equal(t, []string{"rest-conventions"}, plan.Stages[1].RuleIDs)
	assert.Equal(t, []string{"test-coverage"}, plan.Stages[2].RuleIDs)
	assert.Equal(t, []string{"secure-auth"}, plan.Stages[3].RuleIDs)

	assert.Equal(t, []string{"design-review"}, plan.Stages[0].QualityGates)
	assert.Equal(t, []string{"api-contract-review"}, plan.Stages[1].QualityGates)
	assert.Equal(t, []string{"tests-pass"}, plan.Stages[2].QualityGates)
	assert.Equal(t, []string{"security-review"}, plan.Stages[3].QualityGates)
}

func TestGenerate_UnmappedStageFallsToFirst(t *testing.T) {
	// The low template has no planning stage, so architecture rules land in
	// the first stage rather than being dropped.
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	plan, err := g.Generate(catalog, cls(classifier.ComplexityLow), []string{"migration-safety"})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, []string{"migration-safety"}, plan.Stages[0].RuleIDs)
	assert.Contains(t, plan.Stages[0].QualityGates, "design-review")
}

func TestGenerate_EveryRuleAssignedOnce(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	var ids []string
	for _, r := range catalog.All() {
		ids = append(ids, r.ID)
	}

	plan, err := g.Generate(catalog, cls(classifier.ComplexityHigh), ids)
	require.NoError(t, err)

	var placed []string
	for _, s := range plan.Stages {
		placed = append(placed, s.RuleIDs...)
	}
	assert.ElementsMatch(t, ids, placed)
}

func TestGenerate_GateDedup(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	// Two security rules in the same stage contribute the gate once.
	plan, err := g.Generate(catalog, cls(classifier.ComplexityHigh), []string{"secure-auth", "input-validation"})
	require.NoError(t, err)

	review := plan.Stages[3]
	assert.Equal(t, []string{"secure-auth", "input-validation"}, review.RuleIDs)
	assert.Equal(t, []string{"security-review"}, review.QualityGates)
}

func TestGenerate_InvalidClassification(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	_, err := g.Generate(catalog, classifier.Classification{}, nil)
	require.ErrorIs(t, err, ErrInvalidClassification)

	_, err = g.Generate(catalog, classifier.Classification{Complexity: "extreme"}, nil)
	require.ErrorIs(t, err, ErrInvalidClassification)
}

func TestGenerate_MissingTemplate(t *testing.T) {
	g := New(Config{
		Templates: map[classifier.Complexity][]string{
			classifier.ComplexityLow: {"implementation"},
		},
	}, nil)
	catalog := defaultCatalog(t)

	_, err := g.Generate(catalog, cls(classifier.ComplexityHigh), nil)
	require.ErrorIs(t, err, ErrInvalidClassification)
}

func TestGenerate_UnknownRuleID(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	_, err := g.Generate(catalog, cls(classifier.ComplexityLow), []string{"no-such-rule"})
	require.ErrorIs(t, err, rules.ErrRuleNotFound)
}

func TestGenerate_EmptySelection(t *testing.T) {
	g := New(Config{}, nil)
	catalog := defaultCatalog(t)

	plan, err := g.Generate(catalog, cls(classifier.ComplexityLow), nil)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 2)
	for _, s := range plan.Stages {
		assert.Empty(t, s.RuleIDs)
		assert.Empty(t, s.QualityGates)
	}
}
