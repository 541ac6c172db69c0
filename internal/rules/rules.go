// Package rules provides the static rule catalog: the source of truth for
// every behavioral rule the orchestrator can select for a task.
package rules

// Category groups rules by the concern they cover. Stage assignment and
// quality gates in the plan generator key off the category.
type Category string

const (
	CategoryPolicy        Category = "policy"
	CategorySecurity      Category = "security"
	CategoryAPI           Category = "api"
	CategoryTesting       Category = "testing"
	CategoryArchitecture  Category = "architecture"
	CategoryPerformance   Category = "performance"
	CategoryDocumentation Category = "documentation"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryPolicy, CategorySecurity, CategoryAPI, CategoryTesting,
		CategoryArchitecture, CategoryPerformance, CategoryDocumentation:
		return true
	}
	return false
}

// Rule is a named unit of behavioral guidance. Rules are immutable after
// catalog load; changing them requires an explicit catalog reload.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Category    Category `json:"category" yaml:"category"`
	Description string   `json:"description" yaml:"description"`

	// ApplicabilityTags connect the rule to classification-derived tags.
	ApplicabilityTags []string `json:"applicability_tags" yaml:"applicability_tags"`

	// Mandatory rules are force-included in every selection regardless of score.
	Mandatory bool `json:"mandatory" yaml:"mandatory"`
}

// DefaultDefinitions returns the built-in rule set used when no rule file is
// configured. Mirrors the baseline catalog the orchestrator shipped with.
func DefaultDefinitions() []Rule {
	return []Rule{
		{
			ID:                "baseline-policy",
			Title:             "Baseline engineering policy",
			Category:          CategoryPolicy,
			Description:       "Follow project conventions, keep changes minimal and reviewable.",
			ApplicabilityTags: []string{"general"},
			Mandatory:         true,
		},
		{
			ID:                "secure-auth",
			Title:             "Authentication and secrets handling",
			Category:          CategorySecurity,
			Description:       "Never log credentials, validate tokens server-side, rotate secrets.",
			ApplicabilityTags: []string{"security", "auth", "api"},
		},
		{
			ID:                "input-validation",
			Title:             "Validate external input",
			Category:          CategorySecurity,
			Description:       "Treat all request payloads and file contents as untrusted.",
			ApplicabilityTags: []string{"security", "api", "data"},
		},
		{
			ID:                "rest-conventions",
			Title:             "REST endpoint conventions",
			Category:          CategoryAPI,
			Description:       "Consistent resource naming, status codes, and error payloads.",
			ApplicabilityTags: []string{"api", "endpoint", "backend"},
		},
		{
			ID:                "test-coverage",
			Title:             "Tests accompany behavior changes",
			Category:          CategoryTesting,
			Description:       "Every behavior change lands with a test that fails without it.",
			ApplicabilityTags: []string{"testing", "general"},
		},
		{
			ID:                "migration-safety",
			Title:             "Safe schema and data migrations",
			Category:          CategoryArchitecture,
			Description:       "Migrations are reversible, staged, and verified on a copy first.",
			ApplicabilityTags: []string{"data", "migration", "database"},
		},
		{
			ID:                "perf-budget",
			Title:             "Performance budgets",
			Category:          CategoryPerformance,
			Description:       "Measure before optimizing; no O(n^2) on request paths.",
			ApplicabilityTags: []string{"performance", "backend"},
		},
		{
			ID:                "doc-updates",
			Title:             "Documentation follows the code",
			Category:          CategoryDocumentation,
			Description:       "Public surface changes update the relevant docs in the same change.",
			ApplicabilityTags: []string{"documentation", "general"},
		},
	}
}
