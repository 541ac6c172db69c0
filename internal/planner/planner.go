// Package planner turns a rule selection and task classification into a
// staged execution plan with quality gates.
package planner

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/rules"
)

// ErrInvalidClassification indicates a missing or malformed classification.
// The planner does not guess.
var ErrInvalidClassification = errors.New("invalid classification")

// Stage is one ordered phase of an execution plan.
type Stage struct {
	Name         string   `json:"name"`
	RuleIDs      []string `json:"rules"`
	QualityGates []string `json:"quality_gates"`
}

// Plan is the ordered stage sequence for a task. Transient, returned to the
// caller, never stored.
type Plan struct {
	Stages []Stage `json:"stages"`
}

// Config holds the stage templates and category mappings. All three maps are
// configuration, not logic: new complexity templates and categories extend
// the planner without code changes.
type Config struct {
	// Templates maps complexity to the ordered stage names for that grade.
	Templates map[classifier.Complexity][]string

	// CategoryStages maps a rule category to the stage it belongs in.
	// A category absent here (or mapped to a stage outside the chosen
	// template) lands in the template's first stage.
	CategoryStages map[rules.Category]string

	// CategoryGates maps a rule category to the quality gate identifiers it
	// contributes to its stage.
	CategoryGates map[rules.Category][]string
}

// DefaultConfig returns the built-in staging configuration.
func DefaultConfig() Config {
	return Config{
		Templates: map[classifier.Complexity][]string{
			classifier.ComplexityLow:    {"implementation", "verification"},
			classifier.ComplexityMedium: {"planning", "implementation", "verification", "review"},
			classifier.ComplexityHigh:   {"planning", "implementation", "verification", "review"},
		},
		CategoryStages: map[rules.Category]string{
			rules.CategoryArchitecture:  "planning",
			rules.CategoryPolicy:        "implementation",
			rules.CategoryAPI:           "implementation",
			rules.CategoryPerformance:   "implementation",
			rules.CategoryTesting:       "verification",
			rules.CategorySecurity:      "review",
			rules.CategoryDocumentation: "review",
		},
		CategoryGates: map[rules.Category][]string{
			rules.CategoryPolicy:        {"baseline-compliance"},
			rules.CategorySecurity:      {"security-review"},
			rules.CategoryAPI:           {"api-contract-review"},
			rules.CategoryTesting:       {"tests-pass"},
			rules.CategoryArchitecture:  {"design-review"},
			rules.CategoryPerformance:   {"benchmark-check"},
			rules.CategoryDocumentation: {"docs-updated"},
		},
	}
}

// Generator builds execution plans.
type Generator struct {
	config Config
	logger *zap.Logger
}

// New creates a plan generator. A zero config falls back to defaults.
func New(cfg Config, logger *zap.Logger) *Generator {
	if cfg.Templates == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{config: cfg, logger: logger}
}

// Generate builds the plan for a classified task and its selected rules.
//
// Every selected rule is assigned to exactly one stage by category; a rule
// whose category maps to no stage in the chosen template is placed in the
// first stage, never dropped. Each stage accumulates the deduplicated union
// of the quality gates its rules' categories declare.
//
// Returns ErrInvalidClassification if the classification's complexity is
// missing or has no configured template. A selected rule id missing from the
// catalog is a defect and fails with rules.ErrRuleNotFound.
func (g *Generator) Generate(catalog *rules.Catalog, cls classifier.Classification, ruleIDs []string) (Plan, error) {
	if !cls.Complexity.Valid() {
		return Plan{}, fmt.Errorf("%w: complexity %q", ErrInvalidClassification, cls.Complexity)
	}

	stageNames, ok := g.config.Templates[cls.Complexity]
	if !ok || len(stageNames) == 0 {
		return Plan{}, fmt.Errorf("%w: no stage template for complexity %q", ErrInvalidClassification, cls.Complexity)
	}

	stageIndex := make(map[string]int, len(stageNames))
	stages := make([]Stage, len(stageNames))
	for i, name := range stageNames {
		stages[i] = Stage{Name: name, RuleIDs: []string{}, QualityGates: []string{}}
		stageIndex[name] = i
	}

	gateSeen := make([]map[string]bool, len(stages))
	for i := range gateSeen {
		gateSeen[i] = make(map[string]bool)
	}

	for _, id := range ruleIDs {
		rule, err := catalog.Get(id)
		if err != nil {
			return Plan{}, fmt.Errorf("selection references unknown rule: %w", err)
		}

		idx := 0 // default stage for unmapped categories
		if name, ok := g.config.CategoryStages[rule.Category]; ok {
			if i, ok := stageIndex[name]; ok {
				idx = i
			}
		}

		stages[idx].RuleIDs = append(stages[idx].RuleIDs, rule.ID)
		for _, gate := range g.config.CategoryGates[rule.Category] {
			if !gateSeen[idx][gate] {
				gateSeen[idx][gate] = true
				stages[idx].QualityGates = append(stages[idx].QualityGates, gate)
			}
		}
	}

	g.logger.Debug("generated plan",
		zap.String("complexity", string(cls.Complexity)),
		zap.Int("stages", len(stages)),
		zap.Int("rules", len(ruleIDs)),
	)

	return Plan{Stages: stages}, nil
}
