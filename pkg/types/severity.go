package types

import (
	"fmt"
	"strings"
)

// Severity is the rule-declared severity carried in match metadata.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = "unknown"
)

// ParseSeverity normalizes a severity string. Unrecognized values map to
// SeverityUnknown without error; use ParseSeverityStrict for user input.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}

// ParseSeverityStrict is ParseSeverity but rejects unknown names.
func ParseSeverityStrict(s string) (Severity, error) {
	sev := ParseSeverity(s)
	if sev == SeverityUnknown && !strings.EqualFold(strings.TrimSpace(s), string(SeverityUnknown)) {
		return SeverityUnknown, fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}
