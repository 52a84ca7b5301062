package handlers

import (
	"altwriter/internal/config"
	"altwriter/internal/entities"
	"altwriter/internal/knowledge"
	"altwriter/internal/logger"
	"altwriter/internal/pipeline"
	"altwriter/internal/store"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// generateFlags holds the flags of the generate command
type generateFlags struct {
	knowledgeDir string
	outputDir    string
	provider     string
	concurrency  int
	quota        int
	limit        int
	column       string
	encoding     string
	diff         bool
	dryRun       bool
}

// overrides maps the flags the user actually set onto config keys
func (f *generateFlags) overrides(cmd *cobra.Command, args []string) map[string]any {
	o := map[string]any{}
	changed := cmd.Flags().Changed
	if len(args) > 0 {
		o["input.path"] = args[0]
	}
	if changed("knowledge") {
		o["knowledge.dir"] = f.knowledgeDir
	}
	if changed("output") {
		o["output.directory"] = f.outputDir
	}
	if changed("provider") {
		o["llm.provider"] = f.provider
	}
	if changed("concurrency") {
		o["pipeline.concurrency"] = f.concurrency
	}
	if changed("quota") {
		o["policy.required_quota"] = f.quota
	}
	if changed("limit") {
		o["pipeline.limit"] = f.limit
	}
	if changed("column") {
		o["input.column"] = f.column
	}
	if changed("encoding") {
		o["input.encoding"] = f.encoding
	}
	if changed("diff") {
		o["output.diff"] = f.diff
	}
	if f.dryRun {
		o["llm.provider"] = config.ProviderMock
	}
	return o
}

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	return newGenerateCmd(&generateFlags{})
}

func newGenerateCmd(flags *generateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [input.csv]",
		Short: "Generate ALT texts and catch copy for every product in a CSV file",
		Long: `Generate ALT texts and catch copy for every product in the input file.

The knowledge directory is digested once, then every product runs through
prompt composition, generation with retry and format fallback, parsing and
shaping. Products are processed concurrently; Ctrl-C stops scheduling new
products and keeps everything already in flight.

Examples:
  # Use input.path from the config file
  altwriter generate

  # Explicit input, 8 workers, Gemini backend
  altwriter generate rakuten.csv --provider gemini --concurrency 8

  # Dry run with the offline backend and a diff report
  altwriter generate rakuten.csv --dry-run --diff`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.overrides(cmd, args))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&flags.knowledgeDir, "knowledge", "k", "knowledge", "Knowledge directory of *.json files")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "output", "Output directory")
	cmd.Flags().StringVar(&flags.provider, "provider", config.ProviderOpenAI, "Generation backend: openai, gemini, mock")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", 4, "Products processed in parallel")
	cmd.Flags().IntVar(&flags.quota, "quota", 20, "Texts required per product")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Process only the first N products (0 = all)")
	cmd.Flags().StringVar(&flags.column, "column", "商品名", "Input column holding product names")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "auto", "Input encoding: auto, utf-8, shift_jis")
	cmd.Flags().BoolVar(&flags.diff, "diff", false, "Also write a raw/refined diff CSV")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Use the offline mock backend")

	return cmd
}

func runGenerate(ctx context.Context, cfg *config.Config, out, errOut io.Writer) error {
	// Step 1: Load products. A missing source is the one fatal batch error.
	names, err := entities.Load(cfg.Input.Path, cfg.Input.Column, cfg.Input.Encoding)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	if cfg.Pipeline.Limit > 0 && len(names) > cfg.Pipeline.Limit {
		logger.Debug("limiting products", "limit", cfg.Pipeline.Limit, "available", len(names))
		names = names[:cfg.Pipeline.Limit]
	}

	// Step 2: Build the knowledge digest once; it is shared read-only
	policy := cfg.ToPolicy()
	fragments := knowledge.NewLoader().Load(cfg.Knowledge.Dir)
	digest := knowledge.Build(fragments, policy, cfg.DigestOptions())

	// Step 3: Assemble the pipeline
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	p, err := pipeline.NewBuilder().
		WithDigest(digest).
		WithPolicy(policy).
		WithModelParams(cfg.ModelParams()).
		WithRetryPolicy(cfg.RetryPolicy()).
		WithBackend(backend).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	runID := uuid.NewString()
	sink, err := store.NewStore(store.Options{
		Dir:     cfg.Output.Directory,
		Prefix:  cfg.Output.Prefix,
		RunID:   runID,
		Formats: cfg.OutputFormats(),
		Diff:    cfg.Output.Diff,
		Quota:   policy.RequiredQuota,
	})
	if err != nil {
		return err
	}

	logger.Info("batch configured",
		"run_id", runID,
		"provider", cfg.LLM.Provider,
		"model", cfg.ProviderModel(),
		"concurrency", cfg.Pipeline.Concurrency,
		"quota", policy.RequiredQuota)
	fmt.Fprintf(errOut, "%s %d products · %d knowledge files · backend %s\n",
		accentStyle.Render("altwriter"), len(names), len(fragments), backend.Name())

	// Step 4: Run the batch
	runner := pipeline.NewBatchRunner(p, cfg.Pipeline.Concurrency,
		pipeline.WithRunID(runID),
		pipeline.WithSink(sink),
		pipeline.WithProgress(func(done, total int, res pipeline.EntityResult) {
			fmt.Fprintln(errOut, progressLine(done, total, res))
		}),
	)
	report, err := runner.Run(ctx, names)
	if report != nil {
		fmt.Fprintln(out, renderSummary(report, backend.Stats()))
	}
	if err != nil {
		logger.Error("batch finished with errors", err, "run_id", runID)
	}
	return err
}
