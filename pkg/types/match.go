package types

import "fmt"

// MaxMatchStrings caps the matched-string pairs kept per rule match.
const MaxMatchStrings = 10

// MatchString is one matched string identifier and the byte offset of its
// first occurrence.
type MatchString struct {
	Identifier string `json:"identifier"`
	Offset     uint64 `json:"offset"`
}

// Match is a single rule hit against one target.
type Match struct {
	Rule      string         `json:"rule"`
	Namespace string         `json:"namespace"`
	Tags      []string       `json:"tags"`
	Meta      map[string]any `json:"meta"`
	Strings   []MatchString  `json:"strings"`
}

// NewMatch returns a Match with non-nil collections so it always serializes
// as arrays/objects.
func NewMatch(rule, namespace string) Match {
	return Match{
		Rule:      rule,
		Namespace: namespace,
		Tags:      []string{},
		Meta:      map[string]any{},
		Strings:   []MatchString{},
	}
}

// MetaString returns the metadata value for key rendered as a string, or ""
// when the key is absent.
func (m Match) MetaString(key string) string {
	v, ok := m.Meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Severity returns the raw severity metadata, or "unknown" when unset.
func (m Match) Severity() string {
	if s := m.MetaString("severity"); s != "" {
		return s
	}
	return string(SeverityUnknown)
}

// Description returns the description metadata, if any.
func (m Match) Description() string {
	return m.MetaString("description")
}

// Category returns the category metadata, if any.
func (m Match) Category() string {
	return m.MetaString("category")
}
