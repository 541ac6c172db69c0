package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/rules"
)

type fakeBackend struct {
	out string
	err error
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return f.out, f.err
}

func (f *fakeBackend) Name() string { return "fake/model" }

func defaultCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	c, err := rules.NewCatalog(rules.DefaultDefinitions())
	require.NoError(t, err)
	return c
}

func heuristicCls(projectType string, complexity classifier.Complexity, risks ...string) classifier.Classification {
	return classifier.Classification{
		ProjectType: projectType,
		Complexity:  complexity,
		RiskFlags:   append(risks, classifier.RiskFlagFallback),
		Confidence:  0.5,
		Source:      classifier.SourceHeuristic,
	}
}

func TestSelect_MandatoryRulesLead(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Tidy the changelog", heuristicCls("general", classifier.ComplexityLow))

	require.NotEmpty(t, sel.RuleIDs)
	assert.Equal(t, "baseline-policy", sel.RuleIDs[0])
	assert.Equal(t, classifier.SourceHeuristic, sel.Source)
}

func TestSelect_NoDuplicates(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Implement JWT auth for the API",
		heuristicCls("api", classifier.ComplexityHigh, "security"))

	seen := make(map[string]bool)
	for _, id := range sel.RuleIDs {
		assert.False(t, seen[id], "duplicate rule id %s", id)
		seen[id] = true
		assert.True(t, catalog.Has(id), "unknown rule id %s", id)
	}
}

func TestSelect_SecurityTaskRanksSecurityRules(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Implement JWT auth for the API",
		heuristicCls("api", classifier.ComplexityHigh, "security"))

	assert.Contains(t, sel.RuleIDs, "secure-auth")
	assert.Contains(t, sel.RuleIDs, "input-validation")
	assert.Contains(t, sel.RuleIDs, "rest-conventions")

	// Security rules outrank the generic API rule for this classification.
	pos := make(map[string]int)
	for n, id := range sel.RuleIDs {
		pos[id] = n
	}
	assert.Less(t, pos["secure-auth"], pos["rest-conventions"])
}

func TestSelect_IrrelevantRulesStayBelowThreshold(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Tidy the changelog",
		heuristicCls("general", classifier.ComplexityLow))

	assert.NotContains(t, sel.RuleIDs, "migration-safety")
	assert.NotContains(t, sel.RuleIDs, "perf-budget")
	assert.NotContains(t, sel.RuleIDs, "secure-auth")
}

func TestSelect_HeuristicRationaleNotesFallback(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Tidy the changelog",
		heuristicCls("general", classifier.ComplexityLow))
	assert.Contains(t, sel.Rationale, "heuristic")
	assert.Contains(t, sel.Rationale, "classification via heuristic fallback")

	aiCls := classifier.Classification{
		ProjectType: "general",
		Complexity:  classifier.ComplexityLow,
		Confidence:  0.8,
		Source:      classifier.SourceAI,
	}
	sel = s.Select(context.Background(), catalog, "Tidy the changelog", aiCls)
	assert.NotContains(t, sel.Rationale, "fallback")
}

func TestSelect_AIAdjustmentIsClamped(t *testing.T) {
	// The backend votes secure-auth way up; the clamp allows it just past
	// the threshold but an extreme delta must not dominate the scoring.
	backend := &fakeBackend{out: `{"secure-auth": 5.0, "test-coverage": -5.0}`}
	s := New(backend, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Tidy the changelog",
		heuristicCls("general", classifier.ComplexityLow))

	assert.Equal(t, classifier.SourceAI, sel.Source)
	// Base 0.16 + clamped 0.2 lands above the 0.35 threshold.
	assert.Contains(t, sel.RuleIDs, "secure-auth")
	// Base 0.58 - clamped 0.2 stays above it.
	assert.Contains(t, sel.RuleIDs, "test-coverage")
}

func TestSelect_BackendErrorFallsBackToHeuristicScores(t *testing.T) {
	backend := &fakeBackend{err: errors.New("deadline exceeded")}
	catalog := defaultCatalog(t)
	cls := heuristicCls("api", classifier.ComplexityHigh, "security")

	withBackend := New(backend, nil, DefaultConfig(), nil).
		Select(context.Background(), catalog, "Implement JWT auth", cls)
	without := New(nil, nil, DefaultConfig(), nil).
		Select(context.Background(), catalog, "Implement JWT auth", cls)

	// The selection is still produced, identical to pure heuristic scoring,
	// and still leads with the mandatory rules.
	assert.Equal(t, classifier.SourceHeuristic, withBackend.Source)
	assert.Equal(t, without.RuleIDs, withBackend.RuleIDs)
	assert.Equal(t, "baseline-policy", withBackend.RuleIDs[0])
	assert.Contains(t, withBackend.RuleIDs, "secure-auth")
}

func TestSelect_UnparseableAdjustmentFallsBack(t *testing.T) {
	backend := &fakeBackend{out: "I think these rules are all great."}
	s := New(backend, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Implement JWT auth",
		heuristicCls("api", classifier.ComplexityHigh, "security"))
	assert.Equal(t, classifier.SourceHeuristic, sel.Source)
	assert.NotEmpty(t, sel.RuleIDs)
}

func TestSelect_FencedAdjustmentResponse(t *testing.T) {
	backend := &fakeBackend{out: "```json\n{\"secure-auth\": 0.2}\n```"}
	s := New(backend, nil, DefaultConfig(), nil)
	catalog := defaultCatalog(t)

	sel := s.Select(context.Background(), catalog, "Tidy the changelog",
		heuristicCls("general", classifier.ComplexityLow))
	assert.Equal(t, classifier.SourceAI, sel.Source)
	assert.Contains(t, sel.RuleIDs, "secure-auth")
}

func TestTagOverlap(t *testing.T) {
	tags := map[string]bool{"api": true, "high": true}

	r := rules.Rule{ApplicabilityTags: []string{"api", "security", "auth"}}
	assert.InDelta(t, 1.0/3.0, tagOverlap(r, tags), 1e-9)

	// "general" matches every classification.
	r = rules.Rule{ApplicabilityTags: []string{"general", "testing"}}
	assert.InDelta(t, 0.5, tagOverlap(r, tags), 1e-9)

	r = rules.Rule{}
	assert.Zero(t, tagOverlap(r, tags))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.2, clamp(5, 0.2))
	assert.Equal(t, -0.2, clamp(-5, 0.2))
	assert.Equal(t, 0.1, clamp(0.1, 0.2))
}
