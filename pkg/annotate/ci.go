// Package annotate emits CI annotations and step outputs for scan reports.
package annotate

import (
	"fmt"
	"os"
	"strings"
)

// CIKind represents the type of CI.
type CIKind int

const (
	// CIUnknown indicates the CI provider could not be identified.
	CIUnknown CIKind = iota
	// CIGitHub identifies GitHub Actions.
	CIGitHub
	// CIGitLab identifies GitLab CI.
	CIGitLab
)

// Annotation modes accepted by --annotations.
const (
	ModeAuto   = "auto"
	ModeGitHub = "github"
	ModeNone   = "none"
)

// LookupFunc fetches environment variables and defaults to os.Getenv.
type LookupFunc func(string) string

// String returns the human-readable string representation of a CIKind.
func (c CIKind) String() string {
	switch c {
	case CIGitHub:
		return "github"
	case CIGitLab:
		return "gitlab"
	default:
		return "unknown"
	}
}

// ParseCIKind converts a string identifier into a CIKind value.
func ParseCIKind(raw string) (CIKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "github":
		return CIGitHub, nil
	case "gitlab":
		return CIGitLab, nil
	default:
		return CIUnknown, fmt.Errorf("unsupported ci kind %q", raw)
	}
}

// Detect infers the CI provider from well-known environment variables.
func Detect(lookup LookupFunc) CIKind {
	if lookup == nil {
		lookup = os.Getenv
	}
	if strings.EqualFold(lookup("GITHUB_ACTIONS"), "true") || lookup("GITHUB_REPOSITORY") != "" {
		return CIGitHub
	}
	if strings.EqualFold(lookup("GITLAB_CI"), "true") || lookup("CI_PROJECT_PATH") != "" {
		return CIGitLab
	}
	return CIUnknown
}

// Enabled decides whether GitHub annotations are emitted. The legacy
// --github-annotations flag always enables them.
func Enabled(mode string, legacyFlag bool, lookup LookupFunc) (bool, error) {
	if legacyFlag {
		return true, nil
	}
	switch mode {
	case ModeGitHub:
		return true, nil
	case ModeNone, "":
		return false, nil
	case ModeAuto:
		return Detect(lookup) == CIGitHub, nil
	default:
		return false, fmt.Errorf("invalid annotations mode %q (want auto, github or none)", mode)
	}
}
