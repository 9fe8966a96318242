package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samvad-hq/samvad-flashcards/internal/app"
	"github.com/samvad-hq/samvad-flashcards/internal/config"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "flashcards",
		Short:         "Turn keyword news searches into study flashcards",
		Long:          "flashcards fetches news for a keyword, drops near-duplicates through an embedding index and asks a local LLM for flashcards about each article.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "search <keyword>",
			Short: "Fetch, filter and generate flashcards for a keyword",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				keyword := strings.Join(args, " ")
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
					sess, err := a.Search(ctx, keyword, printProgress(cmd.ErrOrStderr()))
					if sess.RunID != "" {
						printReport(cmd.OutOrStdout(), sess.Report)
					}
					if err != nil {
						return fmt.Errorf("search: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "generate",
			Short: "Generate flashcards from the persisted article list",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
					report, err := a.Generate(ctx, printProgress(cmd.ErrOrStderr()))
					if report.RunID != "" {
						printReport(cmd.OutOrStdout(), report)
					}
					if err != nil {
						return fmt.Errorf("generate: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web UI",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
					return a.Serve(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "flashcards %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)
	return root
}

// withApp loads config, initializes logging and the runtime, and runs fn
// under a context cancelled on SIGINT or SIGTERM.
func withApp(parent context.Context, configPath string, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("flashcards starting", "config", cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize app", "error", err.Error())
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printProgress(w io.Writer) pipeline.Observer {
	return func(p pipeline.Progress) {
		fmt.Fprintf(w, "[%3d%%] %s\n", p.Percent, p.Message)
	}
}

func printReport(w io.Writer, r pipeline.Report) {
	fmt.Fprintf(w, "run %s: %d of %d articles produced flashcards (%d failed), written to %s\n",
		r.RunID, r.Succeeded, r.Total, r.Failed, r.OutputPath)
	for _, o := range r.Outcomes {
		if !o.OK() {
			fmt.Fprintf(w, "  failed: %s: %v\n", o.Title, o.Err)
		}
	}
}
