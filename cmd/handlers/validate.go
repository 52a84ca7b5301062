package handlers

import (
	"altwriter/internal/config"
	"altwriter/internal/knowledge"
	"altwriter/internal/logger"
	"altwriter/internal/quality"
	"altwriter/internal/store"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var knowledgeDir string

	cmd := &cobra.Command{
		Use:   "validate <output.json>",
		Short: "Re-check a finished JSON output against the output policy",
		Long: `Read a JSON output file written by generate and check every record:
text count, length window, forbidden words, sentence terminals, mutual
similarity and the catch copy. Exits non-zero when any record fails.

Examples:
  altwriter validate output/alt_20250101_120000_1a2b3c4d.json
  altwriter validate out.json --knowledge ./knowledge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{"llm.provider": config.ProviderMock}
			if cmd.Flags().Changed("knowledge") {
				overrides["knowledge.dir"] = knowledgeDir
			}
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			return runValidate(cfg, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&knowledgeDir, "knowledge", "k", "knowledge", "Knowledge directory supplying forbidden words")
	return cmd
}

func runValidate(cfg *config.Config, path string, out io.Writer) error {
	outputs, err := store.ReadJSON(path)
	if err != nil {
		return err
	}
	if len(outputs) == 0 {
		return errors.New("output file holds no records")
	}

	policy := cfg.ToPolicy()
	digest := knowledge.Build(knowledge.NewLoader().Load(cfg.Knowledge.Dir), policy, cfg.DigestOptions())
	report := quality.Validate(outputs, policy, digest.Forbidden)
	quality.PrintReport(out, report)

	if !report.OK() {
		logger.Warn("validation failed", "path", path, "failed", report.Failed, "grade", report.Grade)
		return fmt.Errorf("%d of %d records failed validation", report.Failed, report.Records)
	}
	return nil
}
