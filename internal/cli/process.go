package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/types"
	"github.com/forPelevin/clipforge/internal/usecase"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		promptKey   string
		extra       string
		noSubtitles bool
		setlistPath string
		show        bool
		cleanup     bool
	)
	cmd := &cobra.Command{
		Use:   "process <youtube-url>",
		Short: "Download a video and cut its highlight clips",
		Long: `Download a video and cut its highlight clips.

Every stage result is cached under <output>/<video-id>/_cache, so re-running an
interrupted command continues from where it stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			tracklist, err := readSetlist(setlistPath)
			if err != nil {
				logger.Warn("setlist not used", "path", setlistPath, "error", err)
			}

			runner, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runner.Run(runCtx, pipeline.Request{
				URL:          args[0],
				PromptKey:    promptKey,
				ExtraContext: extra,
				Captions:     !noSubtitles,
				ShowMode:     show,
				Tracklist:    tracklist,
				Observe: func(s usecase.State) {
					logger.Debug("pipeline state", "state", s)
				},
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return errors.New("interrupted; run the same command again to continue")
				}
				return fmt.Errorf("%w (kind: %s); run the same command again to continue", err, types.KindOf(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mode: %s\n", res.Mode)
			fmt.Fprintf(out, "Run folder: %s\n", res.RunDir)
			for _, a := range res.Artifacts {
				fmt.Fprintf(out, "  %s\n", a)
			}

			if cleanup {
				videoID, _ := pipeline.VideoID(args[0])
				removed, err := pipeline.Cleanup(runner.Layout(videoID))
				for _, p := range removed {
					logger.Info("removed intermediate file", "path", p)
				}
				if err != nil {
					logger.Warn("cleanup incomplete", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&promptKey, "prompt", prompts.DefaultKey, "Prompt preset used for the AI analysis")
	cmd.Flags().StringVar(&extra, "context", "", "Additional context appended to the analysis prompt")
	cmd.Flags().BoolVar(&noSubtitles, "no-subtitles", false, "Render clips without burned-in captions")
	cmd.Flags().StringVar(&setlistPath, "setlist", "", "Text file with a manual tracklist (HH:MM:SS Title per line)")
	cmd.Flags().BoolVar(&show, "show", false, "Look for a tracklist in the video description")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove the downloaded video, audio and transcription after a successful run")
	return cmd
}

// readSetlist returns the manual tracklist text. A missing file is reported and the run
// continues without it.
func readSetlist(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", errors.New("setlist file not found")
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}
