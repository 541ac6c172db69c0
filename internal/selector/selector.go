// Package selector produces an ordered, deduplicated rule selection for a
// classified task.
//
// Every rule gets a relevance score from tag overlap and category weighting;
// when the reasoning backend is available, an AI adjustment bounded to a
// fixed range is added on top, so heuristic scores can be nudged but never
// overridden. Mandatory rules bypass scoring entirely and always lead the
// selection in catalog-stable order.
package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/classifier"
	"github.com/Hipson47/Worm/internal/knowledge"
	"github.com/Hipson47/Worm/internal/llm"
	"github.com/Hipson47/Worm/internal/rules"
)

// Scoring mix: tag overlap dominates, category weighting fills in for rules
// with sparse tags.
const (
	tagWeight      = 0.6
	categoryWeight = 0.4
)

// Config holds selection policy knobs.
type Config struct {
	// Threshold is the minimum score for a rule to be selected.
	Threshold float64

	// MaxAdjustment bounds the AI score adjustment to [-max, +max].
	MaxAdjustment float64
}

// DefaultConfig returns the default selection policy.
func DefaultConfig() Config {
	return Config{Threshold: 0.35, MaxAdjustment: 0.2}
}

// Selection is an ordered, deduplicated set of rule ids with the rationale
// for how it was produced. Derived and transient.
type Selection struct {
	RuleIDs   []string          `json:"rules"`
	Rationale string            `json:"rationale"`
	Source    classifier.Source `json:"source"`
}

// scored pairs a rule with its relevance score during selection.
type scored struct {
	rule  rules.Rule
	score float64
}

// Selector scores and selects rules for a classification.
type Selector struct {
	backend   llm.Backend          // nil means heuristic scoring only
	retriever *knowledge.Retriever // optional grounding context for the AI call
	config    Config
	logger    *zap.Logger
}

// New creates a selector. backend and retriever may be nil.
func New(backend llm.Backend, retriever *knowledge.Retriever, cfg Config, logger *zap.Logger) *Selector {
	if cfg.Threshold == 0 && cfg.MaxAdjustment == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{backend: backend, retriever: retriever, config: cfg, logger: logger}
}

// Select produces the rule selection for the task. It never fails: a backend
// error or timeout drops the AI adjustment component and the selection is
// produced from pure heuristic scores, with the rationale noting the path.
func (s *Selector) Select(ctx context.Context, catalog *rules.Catalog, task string, cls classifier.Classification) Selection {
	tags := make(map[string]bool)
	for _, t := range cls.Tags() {
		tags[t] = true
	}

	var candidates []scored
	for _, r := range catalog.All() {
		if r.Mandatory {
			continue
		}
		candidates = append(candidates, scored{
			rule:  r,
			score: tagWeight*tagOverlap(r, tags) + categoryWeight*categoryScore(r.Category, cls),
		})
	}

	source := classifier.SourceHeuristic
	if s.backend != nil {
		adjustments, err := s.adjustments(ctx, task, cls, candidates)
		if err != nil {
			s.logger.Debug("AI rule adjustment failed, keeping heuristic scores", zap.Error(err))
		} else {
			source = classifier.SourceAI
			for i := range candidates {
				candidates[i].score += clamp(adjustments[candidates[i].rule.ID], s.config.MaxAdjustment)
			}
		}
	}

	var selected []scored
	for _, c := range candidates {
		if c.score > s.config.Threshold {
			selected = append(selected, c)
		}
	}
	// Descending score; ties resolve to catalog-stable (id) order, which
	// candidates already carry.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].score > selected[j].score
	})

	// Mandatory rules lead, in catalog-stable order.
	var ids []string
	for _, r := range catalog.Mandatory() {
		ids = append(ids, r.ID)
	}
	for _, c := range selected {
		ids = append(ids, c.rule.ID)
	}

	rationale := fmt.Sprintf(
		"%s scoring: %d mandatory, %d of %d scored rules above threshold %.2f",
		scoringPath(source), len(ids)-len(selected), len(selected), len(candidates), s.config.Threshold,
	)
	if cls.Source == classifier.SourceHeuristic {
		rationale += "; classification via heuristic fallback"
	}

	return Selection{RuleIDs: ids, Rationale: rationale, Source: source}
}

func scoringPath(s classifier.Source) string {
	if s == classifier.SourceAI {
		return "ai-assisted"
	}
	return "heuristic"
}

// tagOverlap is the fraction of a rule's applicability tags present in the
// classification-derived tag set. The catch-all "general" tag matches every
// classification.
func tagOverlap(r rules.Rule, tags map[string]bool) float64 {
	if len(r.ApplicabilityTags) == 0 {
		return 0
	}
	hits := 0
	for _, t := range r.ApplicabilityTags {
		if t == "general" || tags[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(r.ApplicabilityTags))
}

// categoryScore weights a rule category for the classification's project
// type, complexity, and risk flags.
func categoryScore(cat rules.Category, cls classifier.Classification) float64 {
	risk := make(map[string]bool, len(cls.RiskFlags))
	for _, f := range cls.RiskFlags {
		risk[f] = true
	}

	switch cat {
	case rules.CategorySecurity:
		if risk["security"] || cls.Complexity == classifier.ComplexityHigh {
			return 0.9
		}
		return 0.4
	case rules.CategoryAPI:
		if cls.ProjectType == "api" {
			return 0.8
		}
		return 0.3
	case rules.CategoryTesting:
		return 0.7
	case rules.CategoryArchitecture:
		if risk["data"] || risk["migration"] || cls.Complexity != classifier.ComplexityLow {
			return 0.8
		}
		return 0.3
	case rules.CategoryPerformance:
		if cls.Complexity == classifier.ComplexityHigh {
			return 0.6
		}
		return 0.3
	case rules.CategoryDocumentation:
		return 0.3
	case rules.CategoryPolicy:
		return 0.6
	}
	return 0.5
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// adjustmentPrompt constrains the backend to a JSON map of rule deltas.
const adjustmentPrompt = `Given this task and classification, adjust the relevance of these rules.
Respond with ONLY a JSON object mapping rule id to a number in [-1, 1]
(positive = more relevant). Omit rules you have no opinion on.

Task: %s
Classification: project_type=%s complexity=%s
Rules:
%s%s`

// adjustments asks the backend for per-rule score deltas, optionally
// grounded with retrieved knowledge passages.
func (s *Selector) adjustments(ctx context.Context, task string, cls classifier.Classification, candidates []scored) (map[string]float64, error) {
	var list strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&list, "- %s (%s): %s\n", c.rule.ID, c.rule.Category, c.rule.Title)
	}

	grounding := ""
	if s.retriever != nil {
		if passages, err := s.retriever.Search(ctx, task, 3); err == nil && len(passages) > 0 {
			var b strings.Builder
			b.WriteString("\nRelevant project knowledge:\n")
			for _, p := range passages {
				fmt.Fprintf(&b, "[%s] %s\n", p.SourceID, snippet(p.Text, 240))
			}
			grounding = b.String()
		}
	}

	prompt := fmt.Sprintf(adjustmentPrompt, task, cls.ProjectType, cls.Complexity, list.String(), grounding)

	raw, err := s.backend.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var deltas map[string]float64
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFences(raw))))
	if err := dec.Decode(&deltas); err != nil {
		return nil, fmt.Errorf("unparseable adjustment response: %w", err)
	}
	return deltas, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
