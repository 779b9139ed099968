package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vigil/correlate"
)

// newRulesCmd creates the 'rules' subcommand group.
func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage correlation rules",
	}

	rulesCmd.AddCommand(newRulesValidateCmd())

	return rulesCmd
}

// newRulesValidateCmd creates the 'rules validate' subcommand.
func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate a directory of correlation rule files",
		Long: `Load every *.yaml rule file in the directory, checking schema shape,
semver rule versions and field-level constraints. Exits non-zero when any
file fails validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			ruleSet, err := correlate.LoadRuleSet(dir, zap.NewNop().Sugar())
			if err != nil {
				errorColor.Printf("Validation failed: %v\n", err)
				return fmt.Errorf("rule validation failed")
			}

			if outputJSON {
				return outputAsJSON(ruleSet.EnabledRules())
			}

			renderRulesTable(ruleSet)
			successColor.Printf("All rules valid (%d loaded)\n", ruleSet.Len())
			return nil
		},
	}
}
