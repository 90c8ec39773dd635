package types

// RuleSource is one compiled rule file and the namespace its rules live in.
type RuleSource struct {
	Namespace string `json:"namespace"`
	Path      string `json:"path"`
}
