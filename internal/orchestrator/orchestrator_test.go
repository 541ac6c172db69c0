package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/knowledge"
	"github.com/Hipson47/Worm/internal/llm"
	"github.com/Hipson47/Worm/internal/planner"
	"github.com/Hipson47/Worm/internal/rules"
	"github.com/Hipson47/Worm/internal/selector"
)

type fakeBackend struct {
	out string
	err error
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return f.out, f.err
}

func (f *fakeBackend) Name() string { return "fake/model" }

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t)
	}
	return out, nil
}

func (fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

func (fixedEmbedder) Version() string { return "fixed/v1" }

func embed(text string) []float32 {
	if strings.Contains(text, "deploy") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

// newHeuristicOrchestrator wires the full pipeline without a backend.
func newHeuristicOrchestrator(t *testing.T, backend llm.Backend) *Orchestrator {
	t.Helper()

	catalog, err := rules.NewCatalog(rules.DefaultDefinitions())
	require.NoError(t, err)

	index, err := knowledge.NewIndex(knowledge.IndexConfig{Collection: "test"}, fixedEmbedder{}, nil)
	require.NoError(t, err)
	retriever := knowledge.NewRetriever(index, 5, nil)

	o, err := New(Options{
		Catalog:    catalog,
		Classifier: classifier.New(backend, nil),
		Selector:   selector.New(backend, retriever, selector.DefaultConfig(), nil),
		Planner:    planner.New(planner.Config{}, nil),
		Retriever:  retriever,
		Index:      index,
		Backend:    backend,
		Health:     &llm.Health{},
	})
	require.NoError(t, err)
	return o
}

func TestNew_RequiredDependencies(t *testing.T) {
	catalog, err := rules.NewCatalog(rules.DefaultDefinitions())
	require.NoError(t, err)

	_, err = New(Options{})
	require.Error(t, err)

	_, err = New(Options{Catalog: catalog})
	require.Error(t, err)

	_, err = New(Options{
		Catalog:    catalog,
		Classifier: classifier.New(nil, nil),
		Selector:   selector.New(nil, nil, selector.DefaultConfig(), nil),
		Planner:    planner.New(planner.Config{}, nil),
	})
	require.NoError(t, err)
}

func TestOrchestrate_HeuristicEndToEnd(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)

	result, err := o.Orchestrate(context.Background(),
		"Add a new read-only report endpoint",
		map[string]string{"tech_stack": "python"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, "api", result.Classification.ProjectType)
	assert.Equal(t, classifier.ComplexityLow, result.Classification.Complexity)
	assert.Equal(t, classifier.SourceHeuristic, result.Classification.Source)

	// The mandatory baseline leads, and the API rule made the cut.
	require.NotEmpty(t, result.Selection.RuleIDs)
	assert.Equal(t, "baseline-policy", result.Selection.RuleIDs[0])
	assert.Contains(t, result.Selection.RuleIDs, "rest-conventions")

	// Low complexity yields the two-stage template, with gates attached.
	require.Len(t, result.Plan.Stages, 2)
	assert.Equal(t, "implementation", result.Plan.Stages[0].Name)
	assert.Equal(t, "verification", result.Plan.Stages[1].Name)
	assert.NotEmpty(t, result.Plan.Stages[0].QualityGates)
}

func TestOrchestrate_UniqueRequestIDs(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)
	ctx := context.Background()

	a, err := o.Orchestrate(ctx, "Add an endpoint", nil)
	require.NoError(t, err)
	b, err := o.Orchestrate(ctx, "Add an endpoint", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestOrchestrate_BackendFailureStillProduces(t *testing.T) {
	o := newHeuristicOrchestrator(t, &fakeBackend{err: errors.New("unreachable")})

	result, err := o.Orchestrate(context.Background(), "Implement JWT auth for the API", nil)
	require.NoError(t, err)

	assert.Equal(t, classifier.SourceHeuristic, result.Classification.Source)
	assert.Contains(t, result.Classification.RiskFlags, classifier.RiskFlagFallback)
	assert.Contains(t, result.Selection.RuleIDs, "secure-auth")
	assert.Len(t, result.Plan.Stages, 4)
}

func TestOrchestrate_EmptyTask(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)

	_, err := o.Orchestrate(context.Background(), "   ", nil)
	require.Error(t, err)

	_, err = o.SelectRules(context.Background(), "", nil)
	require.Error(t, err)
}

func TestSelectRules(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)

	sel, err := o.SelectRules(context.Background(), "Write a schema migration for orders", nil)
	require.NoError(t, err)
	assert.Equal(t, "baseline-policy", sel.RuleIDs[0])
	assert.Contains(t, sel.RuleIDs, "migration-safety")
	assert.NotEmpty(t, sel.Rationale)
}

func TestGeneratePlan(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)

	plan, err := o.GeneratePlan(context.Background(), "Tidy the changelog", nil)
	require.NoError(t, err)
	assert.Len(t, plan.Stages, 2)
}

func TestVerifySelection(t *testing.T) {
	catalog, err := rules.NewCatalog(rules.DefaultDefinitions())
	require.NoError(t, err)

	assert.NoError(t, verifySelection(catalog, selector.Selection{
		RuleIDs: []string{"baseline-policy", "secure-auth"},
	}))

	err = verifySelection(catalog, selector.Selection{
		RuleIDs: []string{"baseline-policy", "baseline-policy"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = verifySelection(catalog, selector.Selection{
		RuleIDs: []string{"ghost-rule"},
	})
	require.ErrorIs(t, err, rules.ErrRuleNotFound)
}

func TestQueryKnowledge(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)
	ctx := context.Background()

	_, err := o.index.Ingest(ctx, "runbooks/deploy.md", "deploy with the blue-green script")
	require.NoError(t, err)
	_, err = o.index.Ingest(ctx, "style.md", "tabs not spaces")
	require.NoError(t, err)

	resp, err := o.QueryKnowledge(ctx, "how do we deploy", 2)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Answers)
	assert.Equal(t, "runbooks/deploy.md", resp.Answers[0].SourceID)
	assert.Empty(t, resp.Summary)

	_, err = o.QueryKnowledge(ctx, "  ", 2)
	require.Error(t, err)
}

func TestQueryKnowledge_SummaryIsBestEffort(t *testing.T) {
	o := newHeuristicOrchestrator(t, &fakeBackend{out: "Use the blue-green script."})
	ctx := context.Background()

	_, err := o.index.Ingest(ctx, "runbooks/deploy.md", "deploy with the blue-green script")
	require.NoError(t, err)

	resp, err := o.QueryKnowledge(ctx, "how do we deploy", 1)
	require.NoError(t, err)
	assert.Equal(t, "Use the blue-green script.", resp.Summary)

	// A failing backend drops the summary, not the answers.
	failing := newHeuristicOrchestrator(t, &fakeBackend{err: errors.New("down")})
	_, err = failing.index.Ingest(ctx, "runbooks/deploy.md", "deploy with the blue-green script")
	require.NoError(t, err)

	resp, err = failing.QueryKnowledge(ctx, "how do we deploy", 1)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Answers)
	assert.Empty(t, resp.Summary)
}

func TestStatus(t *testing.T) {
	o := newHeuristicOrchestrator(t, nil)
	s := o.Status()

	assert.False(t, s.BackendConfigured)
	assert.Equal(t, len(rules.DefaultDefinitions()), s.Rules)
	assert.Zero(t, s.IndexedDocuments)

	_, err := o.index.Ingest(context.Background(), "doc.md", "deploy notes")
	require.NoError(t, err)
	s = o.Status()
	assert.Equal(t, 1, s.IndexedDocuments)
	assert.Equal(t, 1, s.IndexedChunks)

	withBackend := newHeuristicOrchestrator(t, &fakeBackend{out: "ok"})
	s = withBackend.Status()
	assert.True(t, s.BackendConfigured)
	assert.Equal(t, "fake/model", s.BackendName)
	assert.True(t, s.BackendReachable)
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: only-rule
  title: The only rule
  category: policy
  mandatory: true
`), 0o600))

	catalog, err := rules.LoadFile(path)
	require.NoError(t, err)

	o, err := New(Options{
		Catalog:    catalog,
		RulesPath:  path,
		Classifier: classifier.New(nil, nil),
		Selector:   selector.New(nil, nil, selector.DefaultConfig(), nil),
		Planner:    planner.New(planner.Config{}, nil),
	})
	require.NoError(t, err)
	require.Equal(t, 1, o.Catalog().Len())

	// Catalog grows after the file changes and Reload is called.
	require.NoError(t, os.WriteFile(path, []byte(`
- id: only-rule
  title: The only rule
  category: policy
  mandatory: true
- id: second-rule
  title: A second rule
  category: testing
`), 0o600))
	require.NoError(t, o.Reload())
	assert.Equal(t, 2, o.Catalog().Len())

	// A broken file keeps the previous catalog.
	require.NoError(t, os.WriteFile(path, []byte("- id: dup\n  category: policy\n- id: dup\n  category: testing\n"), 0o600))
	require.Error(t, o.Reload())
	assert.Equal(t, 2, o.Catalog().Len())
}
