// Package classifier derives a structured task classification from a
// free-text task description and optional context hints.
//
// The primary path asks the reasoning backend for a constrained JSON
// classification and validates it strictly; anything unparseable is a
// failure, not a partial success. The fallback path is a deterministic
// keyword table. The result carries an explicit Source tag so the two paths
// are ordinary values, not exception flow, and a classification is always
// produced.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Hipson47/Worm/internal/llm"
)

// Complexity grades a task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid reports whether the complexity is a known grade.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// Source tags which path produced a classification.
type Source string

const (
	// SourceAI marks a successfully parsed backend classification.
	SourceAI Source = "ai"
	// SourceHeuristic marks the deterministic fallback path.
	SourceHeuristic Source = "heuristic"
)

// RiskFlagFallback is set whenever the heuristic path was used.
const RiskFlagFallback = "fallback_used"

// minAIConfidence keeps any AI classification strictly above every
// heuristic one (heuristics are capped at maxHeuristicConfidence).
const (
	minAIConfidence        = 0.55
	maxHeuristicConfidence = 0.5
)

// Classification is the structured summary of a task. Created fresh per
// request and never persisted.
type Classification struct {
	ProjectType string     `json:"project_type"`
	Complexity  Complexity `json:"complexity"`
	RiskFlags   []string   `json:"risk_flags"`
	Confidence  float64    `json:"confidence"`
	Source      Source     `json:"source"`
}

// Tags derives the applicability tags used by rule scoring: the project
// type, the complexity grade, and every risk flag except the fallback
// marker.
func (c Classification) Tags() []string {
	tags := []string{c.ProjectType, string(c.Complexity)}
	for _, f := range c.RiskFlags {
		if f != RiskFlagFallback {
			tags = append(tags, f)
		}
	}
	sort.Strings(tags)
	return tags
}

// Classifier maps task descriptions to classifications.
type Classifier struct {
	backend llm.Backend // nil means heuristics only
	logger  *zap.Logger
}

// New creates a classifier. backend may be nil.
func New(backend llm.Backend, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{backend: backend, logger: logger}
}

// Classify produces a classification for the task. It never fails: if the
// backend is unavailable, times out, or returns an invalid response, the
// deterministic heuristic result is returned instead.
func (c *Classifier) Classify(ctx context.Context, task string, taskCtx map[string]string) Classification {
	if c.backend != nil {
		cls, err := c.classifyAI(ctx, task, taskCtx)
		if err == nil {
			return cls
		}
		c.logger.Debug("AI classification failed, using heuristics", zap.Error(err))
	}
	return classifyHeuristic(task, taskCtx)
}

// classificationPrompt constrains the backend to a strict JSON response.
const classificationPrompt = `Classify the following software engineering task.
Respond with ONLY a JSON object, no prose, with exactly these fields:
{"project_type": string, "complexity": "low"|"medium"|"high", "risk_flags": [string], "confidence": number in [0,1]}

Task: %s
Context: %s`

// aiResponse is the exact schema the backend must produce.
type aiResponse struct {
	ProjectType string   `json:"project_type"`
	Complexity  string   `json:"complexity"`
	RiskFlags   []string `json:"risk_flags"`
	Confidence  float64  `json:"confidence"`
}

func (c *Classifier) classifyAI(ctx context.Context, task string, taskCtx map[string]string) (Classification, error) {
	prompt := fmt.Sprintf(classificationPrompt, task, formatContext(taskCtx))

	raw, err := c.backend.Complete(ctx, prompt)
	if err != nil {
		return Classification{}, err
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return Classification{}, err
	}

	confidence := resp.Confidence
	if confidence < minAIConfidence {
		confidence = minAIConfidence
	}

	return Classification{
		ProjectType: resp.ProjectType,
		Complexity:  Complexity(resp.Complexity),
		RiskFlags:   resp.RiskFlags,
		Confidence:  confidence,
		Source:      SourceAI,
	}, nil
}

// parseResponse validates the backend output against the schema. Unknown
// fields, missing fields, and out-of-range values are all failures.
func parseResponse(raw string) (aiResponse, error) {
	trimmed := stripFences(raw)

	var resp aiResponse
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return aiResponse{}, fmt.Errorf("unparseable classification response: %w", err)
	}

	if resp.ProjectType == "" {
		return aiResponse{}, fmt.Errorf("classification response missing project_type")
	}
	if !Complexity(resp.Complexity).Valid() {
		return aiResponse{}, fmt.Errorf("classification response has invalid complexity: %q", resp.Complexity)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return aiResponse{}, fmt.Errorf("classification confidence out of range: %v", resp.Confidence)
	}
	return resp, nil
}

// stripFences removes a surrounding markdown code fence, which models emit
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func formatContext(taskCtx map[string]string) string {
	if len(taskCtx) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(taskCtx))
	for k := range taskCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, taskCtx[k])
	}
	return b.String()
}
