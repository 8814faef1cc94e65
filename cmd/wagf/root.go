package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WenyuChiou/WAGF-sub003/pkg/cli"
	"github.com/WenyuChiou/WAGF-sub003/pkg/config"
	"github.com/WenyuChiou/WAGF-sub003/pkg/config/gitsource"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	sourceFlags struct {
		repository string
		revision   string
		path       string
		cacheDir   string
	}
)

var rootCmd = &cobra.Command{
	Use:   "wagf",
	Short: "WAGF - governed decision loop for agent simulations",
	Long: `WAGF runs agent-based simulations in which a language model proposes each
agent's next action and a governance broker decides what is actually executed.

Every proposal is:
  - parsed into a skill proposal with appraisal labels
  - validated against an ordered rule table and a behavioural theory
  - retried with corrective feedback when it is rejected
  - replaced by the agent type's fallback skill when retries run out

Each decision leaves one trace record describing every attempt.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the status mapped from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wagf.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.PersistentFlags().StringVar(&sourceFlags.repository, "source-repo", "", "load the config from this git repository instead of --config")
	rootCmd.PersistentFlags().StringVar(&sourceFlags.revision, "source-revision", "", "git revision of --source-repo (default HEAD)")
	rootCmd.PersistentFlags().StringVar(&sourceFlags.path, "source-path", "", "config file inside --source-repo (default wagf.yaml)")
	rootCmd.PersistentFlags().StringVar(&sourceFlags.cacheDir, "source-cache", "", "clone cache for remote repositories")
}

// loadConfig loads the configuration from --source-repo when given, from
// --config otherwise. A file that names its own source is replaced by the
// file at that source.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if sourceFlags.repository != "" {
		cfg, _, err := gitsource.Load(ctx, config.SourceConfig{
			Repository: sourceFlags.repository,
			Revision:   sourceFlags.revision,
			Path:       sourceFlags.path,
		}, sourceFlags.cacheDir)
		return cfg, err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Source.Repository == "" {
		return cfg, nil
	}
	src := cfg.Source
	if !isRemote(src.Repository) {
		src.Repository = cfg.ResolvePath(src.Repository)
	}
	sourced, _, err := gitsource.Load(ctx, src, sourceFlags.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config source: %w", err)
	}
	return sourced, nil
}

func isRemote(repository string) bool {
	return strings.Contains(repository, "://") || strings.HasPrefix(repository, "git@")
}
