package handlers

import (
	"altwriter/internal/config"
	"altwriter/internal/core"
	"altwriter/internal/knowledge"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewKnowledgeCmd creates the knowledge command
func NewKnowledgeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "knowledge [dir]",
		Short: "Show the knowledge digest that is fed into prompts",
		Long: `Load every knowledge file, classify it by name and print the capped
digest: per-category terms, the forbidden-word set and the summary text
that prompts embed.

Examples:
  altwriter knowledge
  altwriter knowledge ./knowledge --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{"llm.provider": config.ProviderMock}
			if len(args) > 0 {
				overrides["knowledge.dir"] = args[0]
			}
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			return runKnowledge(cfg, asJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the digest as JSON")
	return cmd
}

func runKnowledge(cfg *config.Config, asJSON bool, out io.Writer) error {
	fragments := knowledge.NewLoader().Load(cfg.Knowledge.Dir)
	digest := knowledge.Build(fragments, cfg.ToPolicy(), cfg.DigestOptions())

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(digest)
	}

	fmt.Fprintf(out, "%s %s (%d files)\n\n", accentStyle.Render("knowledge"), cfg.Knowledge.Dir, len(fragments))
	for _, f := range fragments {
		fmt.Fprintf(out, "  %-10s %4d terms  %s\n", f.Category, len(f.Terms), f.SourcePath)
	}
	if len(fragments) > 0 {
		fmt.Fprintln(out)
	}
	for _, c := range core.Categories {
		terms := digest.TermsFor(c)
		if len(terms) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(string(c)), strings.Join(terms, "、"))
	}
	fmt.Fprintf(out, "%s %d words\n", labelStyle.Render("forbidden"), digest.Forbidden.Len())
	if digest.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", digest.Summary)
	}
	return nil
}
