package classifier

import (
	"sort"
	"strings"
)

// Fixed keyword tables for the deterministic fallback path. Matching is
// case-insensitive substring matching over the task text and context values.

var projectTypeKeywords = map[string][]string{
	"api":      {"endpoint", "rest", "http", "api", "route", "handler"},
	"frontend": {"ui", "frontend", "component", "css", "react", "page"},
	"cli":      {"cli", "command-line", "flag", "subcommand", "terminal"},
	"data":     {"database", "schema", "migration", "query", "sql", "etl"},
	"infra":    {"deploy", "docker", "kubernetes", "terraform", "pipeline", "ci"},
	"library":  {"library", "package", "sdk", "module api"},
}

var highComplexityKeywords = []string{
	"auth", "security", "encryption", "jwt", "oauth", "payment",
	"migration", "distributed", "concurren", "transaction", "billing",
}

var mediumComplexityKeywords = []string{
	"refactor", "integrate", "database", "cache", "performance",
	"optimize", "async", "background job",
}

var riskKeywords = map[string][]string{
	"security":  {"auth", "password", "token", "jwt", "oauth", "secret", "encryption", "credential"},
	"data":      {"migration", "schema", "drop", "delete data", "backfill"},
	"migration": {"migration", "migrate", "upgrade path"},
}

// classifyHeuristic is the deterministic fallback classifier: a fixed
// keyword lookup over the task text. Confidence never exceeds
// maxHeuristicConfidence and the fallback risk flag is always set.
func classifyHeuristic(task string, taskCtx map[string]string) Classification {
	text := strings.ToLower(task)
	for _, v := range taskCtx {
		text += " " + strings.ToLower(v)
	}

	projectType, typeHits := matchProjectType(text)
	complexity := matchComplexity(text)

	flags := []string{}
	for flag, words := range riskKeywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				flags = append(flags, flag)
				break
			}
		}
	}
	sort.Strings(flags)
	flags = append(flags, RiskFlagFallback)

	// More keyword evidence, more confidence, capped below every AI result.
	confidence := 0.35
	if typeHits >= 2 || (typeHits >= 1 && len(flags) > 1) {
		confidence = maxHeuristicConfidence
	}

	return Classification{
		ProjectType: projectType,
		Complexity:  complexity,
		RiskFlags:   flags,
		Confidence:  confidence,
		Source:      SourceHeuristic,
	}
}

func matchProjectType(text string) (string, int) {
	bestType := "general"
	bestHits := 0

	// Stable iteration so equal hit counts resolve deterministically.
	types := make([]string, 0, len(projectTypeKeywords))
	for t := range projectTypeKeywords {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		hits := 0
		for _, w := range projectTypeKeywords[t] {
			if strings.Contains(text, w) {
				hits++
			}
		}
		if hits > bestHits {
			bestType, bestHits = t, hits
		}
	}
	return bestType, bestHits
}

func matchComplexity(text string) Complexity {
	for _, w := range highComplexityKeywords {
		if strings.Contains(text, w) {
			return ComplexityHigh
		}
	}
	for _, w := range mediumComplexityKeywords {
		if strings.Contains(text, w) {
			return ComplexityMedium
		}
	}
	return ComplexityLow
}
