package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/store"
	"github.com/forPelevin/clipforge/internal/types"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		owner    int64
		opts     types.JobOptions
		noSubs   bool
		promptIn string
	)
	cmd := &cobra.Command{
		Use:   "submit <youtube-url>",
		Short: "Queue a job for the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			url := strings.TrimSpace(args[0])
			if _, err := pipeline.VideoID(url); err != nil {
				return err
			}
			opts.Prompt = strings.TrimSpace(promptIn)
			if opts.Prompt == "" {
				opts.Prompt = prompts.DefaultKey
			}
			if err := prompts.CheckKey(opts.Prompt); err != nil {
				return err
			}
			if cfg.LLM.Provider != config.ProviderHeuristic {
				presets, err := prompts.Load(cfg.Paths.PromptsDir)
				if err != nil {
					return err
				}
				if _, err := presets.Get(opts.Prompt); err != nil {
					return err
				}
			}
			opts.Captions = !noSubs
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				job, err := st.SubmitJob(cmd.Context(), owner, url, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d for %s\n", job.ID, job.SourceURL)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&owner, "user", 1, "Owner id recorded on the job")
	cmd.Flags().StringVar(&promptIn, "prompt", prompts.DefaultKey, "Prompt preset used for the AI analysis")
	cmd.Flags().StringVar(&opts.ExtraContext, "context", "", "Additional context appended to the analysis prompt")
	cmd.Flags().BoolVar(&noSubs, "no-subtitles", false, "Render clips without burned-in captions")
	cmd.Flags().BoolVar(&opts.ShowMode, "show", false, "Look for a tracklist in the video description")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		owner int64
		skip  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List jobs or show one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				if len(args) == 1 {
					id, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil {
						return fmt.Errorf("invalid job id %q", args[0])
					}
					job, err := st.GetJob(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(job))
					return nil
				}
				list, err := st.ListJobs(cmd.Context(), owner, skip, limit)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(list))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&owner, "user", 1, "Owner whose jobs are listed")
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of jobs to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list")
	return cmd
}

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the available prompt presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			presets, err := prompts.Load(cfg.Paths.PromptsDir)
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No prompt presets in %s\n", cfg.Paths.PromptsDir)
				return nil
			}
			for _, key := range presets.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func renderJobsTable(list []types.Job) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Status", "URL", "Prompt", "Clips", "Updated"})
	for _, j := range list {
		tw.AppendRow(table.Row{j.ID, j.Status, j.SourceURL, j.Options.Prompt, resultSummary(j.Result), j.UpdatedAt.Local().Format(time.DateTime)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func resultSummary(r *types.JobResult) string {
	switch {
	case r == nil:
		return "-"
	case r.Err != nil:
		return "error"
	default:
		return strconv.Itoa(len(r.Artifacts))
	}
}

func renderJobDetail(j types.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %d\n", j.ID)
	fmt.Fprintf(&b, "  Status:  %s\n", j.Status)
	fmt.Fprintf(&b, "  URL:     %s\n", j.SourceURL)
	fmt.Fprintf(&b, "  Prompt:  %s\n", j.Options.Prompt)
	if j.Options.ExtraContext != "" {
		fmt.Fprintf(&b, "  Context: %s\n", j.Options.ExtraContext)
	}
	fmt.Fprintf(&b, "  Created: %s\n", j.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "  Updated: %s\n", j.UpdatedAt.Local().Format(time.DateTime))
	if j.Result == nil {
		return b.String()
	}
	if j.Result.Err != nil {
		fmt.Fprintf(&b, "  Error:   %s (%s)\n", j.Result.Err.Message, j.Result.Err.Kind)
		return b.String()
	}
	b.WriteString("  Artifacts:\n")
	for _, a := range j.Result.Artifacts {
		fmt.Fprintf(&b, "    %s\n", a)
	}
	return b.String()
}
