// Package orchestrator composes classification, rule selection, plan
// generation, and knowledge retrieval behind the two public operations of
// the system: orchestrate and query-knowledge (plus their select-rules and
// generate-plan projections).
//
// The facade owns no request state: every request constructs its own
// transient classification, selection, and plan. The only shared long-lived
// resource is the knowledge index, which is mutated solely by its refresher.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/knowledge"
	"github.com/Hipson47/Worm/internal/llm"
	"github.com/Hipson47/Worm/internal/planner"
	"github.com/Hipson47/Worm/internal/rules"
	"github.com/Hipson47/Worm/internal/selector"
)

var tracer = otel.Tracer("worm.orchestrator")

// Options wires the orchestrator's collaborators. Catalog, Classifier,
// Selector, and Planner are required; the rest are optional.
type Options struct {
	Catalog    *rules.Catalog
	RulesPath  string // rule definitions file for Reload; empty keeps built-ins
	Classifier *classifier.Classifier
	Selector   *selector.Selector
	Planner    *planner.Generator
	Retriever  *knowledge.Retriever
	Index      *knowledge.Index
	Refresher  *knowledge.Refresher
	Backend    llm.Backend
	Health     *llm.Health
	Logger     *zap.Logger
}

// Orchestrator is the facade over the orchestration core.
type Orchestrator struct {
	mu        sync.RWMutex
	catalog   *rules.Catalog
	rulesPath string

	classifier *classifier.Classifier
	selector   *selector.Selector
	planner    *planner.Generator
	retriever  *knowledge.Retriever
	index      *knowledge.Index
	refresher  *knowledge.Refresher
	backend    llm.Backend
	health     *llm.Health
	logger     *zap.Logger
}

// New creates the orchestrator facade.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if opts.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		catalog:    opts.Catalog,
		rulesPath:  opts.RulesPath,
		classifier: opts.Classifier,
		selector:   opts.Selector,
		planner:    opts.Planner,
		retriever:  opts.Retriever,
		index:      opts.Index,
		refresher:  opts.Refresher,
		backend:    opts.Backend,
		health:     opts.Health,
		logger:     logger,
	}, nil
}

// Catalog returns the current rule catalog.
func (o *Orchestrator) Catalog() *rules.Catalog {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.catalog
}

// Reload rebuilds the rule catalog from its definitions file. The explicit
// entry point replaces any implicit filesystem polling: a failed reload
// keeps the previous catalog.
func (o *Orchestrator) Reload() error {
	catalog, err := rules.LoadFile(o.rulesPath)
	if err != nil {
		return fmt.Errorf("reloading rule catalog: %w", err)
	}
	o.mu.Lock()
	o.catalog = catalog
	o.mu.Unlock()
	o.logger.Info("rule catalog reloaded", zap.Int("rules", catalog.Len()))
	return nil
}

// SelectRules classifies the task and returns the ordered rule selection.
// It never fails due to backend unavailability; the rationale records which
// path produced the selection.
func (o *Orchestrator) SelectRules(ctx context.Context, task string, taskCtx map[string]string) (selector.Selection, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.SelectRules")
	defer span.End()

	if strings.TrimSpace(task) == "" {
		return selector.Selection{}, fmt.Errorf("task description cannot be empty")
	}

	catalog := o.Catalog()
	cls := o.classifier.Classify(ctx, task, taskCtx)
	sel := o.selector.Select(ctx, catalog, task, cls)

	if err := verifySelection(catalog, sel); err != nil {
		return selector.Selection{}, err
	}

	span.SetAttributes(
		attribute.Int("rules", len(sel.RuleIDs)),
		attribute.String("source", string(sel.Source)),
	)
	return sel, nil
}

// GeneratePlan classifies the task, selects rules, and returns the staged
// execution plan.
func (o *Orchestrator) GeneratePlan(ctx context.Context, task string, taskCtx map[string]string) (planner.Plan, error) {
	result, err := o.Orchestrate(ctx, task, taskCtx)
	if err != nil {
		return planner.Plan{}, err
	}
	return result.Plan, nil
}

// Result is the full output of one orchestration request.
type Result struct {
	RequestID      string                    `json:"request_id"`
	Classification classifier.Classification `json:"classification"`
	Selection      selector.Selection        `json:"selection"`
	Plan           planner.Plan              `json:"plan"`
}

// Orchestrate runs the full pipeline: classify, select, plan.
func (o *Orchestrator) Orchestrate(ctx context.Context, task string, taskCtx map[string]string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Orchestrate")
	defer span.End()

	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task description cannot be empty")
	}

	requestID := uuid.NewString()
	log := o.logger.With(zap.String("request_id", requestID))

	catalog := o.Catalog()
	cls := o.classifier.Classify(ctx, task, taskCtx)
	sel := o.selector.Select(ctx, catalog, task, cls)

	if err := verifySelection(catalog, sel); err != nil {
		return nil, err
	}

	plan, err := o.planner.Generate(catalog, cls, sel.RuleIDs)
	if err != nil {
		return nil, err
	}

	log.Info("orchestrated task",
		zap.String("project_type", cls.ProjectType),
		zap.String("complexity", string(cls.Complexity)),
		zap.String("source", string(sel.Source)),
		zap.Int("rules", len(sel.RuleIDs)),
		zap.Int("stages", len(plan.Stages)),
	)
	span.SetAttributes(attribute.String("request_id", requestID))

	return &Result{
		RequestID:      requestID,
		Classification: cls,
		Selection:      sel,
		Plan:           plan,
	}, nil
}

// verifySelection enforces the catalog-membership and uniqueness invariants:
// a selection referencing an unknown rule id, or listing an id twice, is a
// defect, not a valid state.
func verifySelection(catalog *rules.Catalog, sel selector.Selection) error {
	seen := make(map[string]bool, len(sel.RuleIDs))
	for _, id := range sel.RuleIDs {
		if seen[id] {
			return fmt.Errorf("selection contains duplicate rule id %q", id)
		}
		seen[id] = true
		if !catalog.Has(id) {
			return fmt.Errorf("selection references rule %q: %w", id, rules.ErrRuleNotFound)
		}
	}
	return nil
}
