package rule

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterConfig specifies include and exclude patterns for namespace filtering.
type FilterConfig struct {
	Include []string // Regex patterns - only matching namespaces included
	Exclude []string // Regex patterns - matching namespaces excluded
}

// Empty reports whether the filter has no patterns.
func (c FilterConfig) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0
}

// ParsePatterns splits a comma-separated string into individual patterns.
// Patterns are trimmed of whitespace.
func ParsePatterns(patterns string) []string {
	if patterns == "" {
		return []string{}
	}

	parts := strings.Split(patterns, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Filter applies include and exclude patterns to namespace names.
// Include is applied first, then exclude. Empty include means "include all".
// Returns error if any pattern is invalid regex.
func Filter(ns *Namespaces, config FilterConfig) (*Namespaces, error) {
	include, err := compileAll(config.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(config.Exclude)
	if err != nil {
		return nil, err
	}

	out := NewNamespaces()
	for _, src := range ns.Sources() {
		if len(include) > 0 && !matchesAny(src.Namespace, include) {
			continue
		}
		if matchesAny(src.Namespace, exclude) {
			continue
		}
		out.Set(src.Namespace, src.Path)
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(name string, regexes []*regexp.Regexp) bool {
	for _, re := range regexes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
