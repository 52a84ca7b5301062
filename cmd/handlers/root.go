/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"altwriter/internal/config"
	"altwriter/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "altwriter",
		Short: "Generate policy-compliant ALT texts and catch copy for product listings",
		Long: `altwriter - batch ALT text and catch copy generator

For every product name in the input file altwriter asks a generation backend
for candidate texts, then shapes them so each product always leaves with
exactly the required number of texts inside the length window, free of
forbidden words, ending with sentence punctuation and mutually distinct.

Examples:
  # Generate texts for every product in rakuten.csv
  altwriter generate rakuten.csv

  # Try the pipeline without calling a backend
  altwriter generate rakuten.csv --dry-run --limit 5

  # Inspect the knowledge digest fed into prompts
  altwriter knowledge ./knowledge

  # Re-check a finished output file
  altwriter validate output/alt_20250101_120000_1a2b3c4d.json`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .altwriter.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewKnowledgeCmd())
	rootCmd.AddCommand(NewValidateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with flag overrides and applies the log level
func loadConfig(overrides map[string]any) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.App.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.SetLevel(level)
	return cfg, nil
}
