package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/rule"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

var (
	rulesPaths       []string
	rulesNoBundled   bool
	rulesIncludeExpr string
	rulesExcludeExpr string
	outputFormat     string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage YARA rules",
	Long:  "Commands for listing and checking the YARA rule files a scan would load",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rule namespaces",
	Long:  "Display every rule namespace a scan would load, in load order, with its source file",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile rules without scanning",
	Long:  "Resolve and compile the rule set a scan would load and report compilation errors",
	RunE:  runRulesCheck,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesCheckCmd)

	addRulesFlags(rulesListCmd.Flags())
	addRulesFlags(rulesCheckCmd.Flags())
	rulesListCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
}

func addRulesFlags(f *pflag.FlagSet) {
	f.StringArrayVarP(&rulesPaths, "rules", "r", nil, "YARA rules file or directory (repeatable)")
	f.BoolVar(&rulesNoBundled, "no-bundled-rules", false, "Exclude bundled rules")
	f.StringVar(&rulesIncludeExpr, "rules-include", "", "Only namespaces matching regex pattern (comma-separated)")
	f.StringVar(&rulesExcludeExpr, "rules-exclude", "", "Skip namespaces matching regex pattern (comma-separated)")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	sources, err := resolveRuleSources(cmd)
	if err != nil {
		return err
	}

	// Output based on format
	switch outputFormat {
	case "json":
		return outputRulesJSON(cmd, sources)
	case "table":
		return outputRulesTable(cmd, sources)
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	sources, err := resolveRuleSources(cmd)
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Config{Sources: sources})
	if err != nil {
		return &ExitError{Code: exitError, Err: err}
	}
	defer e.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d rule file(s) compiled (%s backend)\n", len(sources), engine.Backend)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveRuleSources resolves the rule set the way scan does.
func resolveRuleSources(cmd *cobra.Command) ([]types.RuleSource, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd, cfg)

	paths := rulesPaths
	if len(paths) == 0 {
		paths = cfg.Rules
	}
	bundled := !rulesNoBundled
	if !flagChanged(cmd, "no-bundled-rules") && cfg.BundledRules != nil {
		bundled = *cfg.BundledRules
	}

	all := rule.CollectPaths(paths, bundled, rule.BundledDir(cfg.BundledRulesDir))
	if len(all) == 0 {
		return nil, &ExitError{Code: exitError, Err: errNoRulesSpecified}
	}

	ns, err := rule.NewLoader(log).Resolve(all)
	if err != nil {
		return nil, err
	}

	filter := rule.FilterConfig{
		Include: rule.ParsePatterns(rulesIncludeExpr),
		Exclude: rule.ParsePatterns(rulesExcludeExpr),
	}
	if !filter.Empty() {
		if ns, err = rule.Filter(ns, filter); err != nil {
			return nil, fmt.Errorf("filtering rules: %w", err)
		}
	}
	return ns.Sources(), nil
}

func outputRulesJSON(cmd *cobra.Command, sources []types.RuleSource) error {
	if sources == nil {
		sources = []types.RuleSource{}
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(sources)
}

func outputRulesTable(cmd *cobra.Command, sources []types.RuleSource) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Namespace\tPath\n")
	fmt.Fprintf(w, "---------\t----\n")

	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\n", s.Namespace, s.Path)
	}

	return nil
}
