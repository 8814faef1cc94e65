package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/WenyuChiou/WAGF-sub003/pkg/cli"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration",
	Long: `Load the configuration and check that it can be run.

The validate command checks:
  - field values and required sections
  - the skill catalogue and every rule reference
  - the theory and its agent types
  - the fallback skill of every agent type

Examples:
  # Validate the default config
  wagf validate

  # Validate a config pinned in git
  wagf validate --source-repo ./rules --source-revision main

  # Machine-readable result
  wagf validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validationReport is the json output of validate.
type validationReport struct {
	Valid          bool     `json:"valid"`
	RuleSetVersion string   `json:"rule_set_version"`
	Theory         string   `json:"theory"`
	Skills         []string `json:"skills"`
	Rules          []string `json:"rules"`
	Agents         int      `json:"agents"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}
	if !verbose {
		slog.SetDefault(slog.New(slog.DiscardHandler))
	}

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	registry, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}
	th, err := cfg.BuildTheory()
	if err != nil {
		return err
	}
	pipeline, err := cfg.BuildPipeline(registry, th)
	if err != nil {
		return err
	}
	if err := cfg.BrokerConfig().Validate(registry); err != nil {
		return err
	}

	report := validationReport{
		Valid:          true,
		RuleSetVersion: cfg.RuleSetVersion,
		Theory:         th.Name(),
		Skills:         registry.IDs(),
		Rules:          pipeline.IDs(),
		Agents:         len(cfg.Agents),
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.WriteJSON(out, report)
	}
	fmt.Fprintf(out, "✓ Configuration valid (rule set %s)\n", report.RuleSetVersion)
	fmt.Fprintf(out, "  Theory: %s\n", report.Theory)
	fmt.Fprintf(out, "  Skills: %d\n", len(report.Skills))
	fmt.Fprintf(out, "  Rules:  %d\n", len(report.Rules))
	fmt.Fprintf(out, "  Agents: %d\n", report.Agents)
	return nil
}
