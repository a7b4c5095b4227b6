package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/api"
	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/store"
	"github.com/forPelevin/clipforge/internal/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			presets, err := prompts.Load(cfg.Paths.PromptsDir)
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				logger.Warn("no prompt presets found", "dir", cfg.Paths.PromptsDir)
			}
			if bind == "" {
				bind = cfg.API.Bind
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ctx.withStore(runCtx, func(st *store.Store) error {
				srv := api.New(st, api.Options{
					Presets:     presets,
					AnyPrompt:   cfg.LLM.Provider == config.ProviderHeuristic,
					CORSOrigins: cfg.API.CORSOrigins,
					Logger:      logger,
				})
				return srv.Serve(runCtx, bind)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from [api].bind)")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runner, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = cfg.Worker.Concurrency
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ctx.withStore(runCtx, func(st *store.Store) error {
				mgr := jobs.NewManager(st, runner, logger)
				pool := worker.New(st, mgr, worker.Options{
					Concurrency:  concurrency,
					PollInterval: cfg.PollInterval(),
					Lease:        cfg.Lease(),
				}, logger)
				return pool.Run(runCtx)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of jobs processed in parallel (default from [worker].concurrency)")
	return cmd
}
