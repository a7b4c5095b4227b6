// Package jobs runs queued jobs under their status lifecycle: a job is marked PROCESSING
// before the pipeline starts and gets exactly one terminal status afterwards, whatever the
// pipeline does.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/forPelevin/clipforge/internal/types"
)

type Store interface {
	GetJob(ctx context.Context, id int64) (types.Job, error)
	Transition(ctx context.Context, id int64, to types.JobStatus, result *types.JobResult) (types.Job, error)
}

// Processor turns a job into its ordered artifact list.
type Processor interface {
	Process(ctx context.Context, job types.Job) ([]string, error)
}

type Outcome struct {
	Status types.JobStatus
	Result types.JobResult
	// Skipped is set when the job was already terminal and nothing ran.
	Skipped bool
}

type Manager struct {
	store  Store
	proc   Processor
	logger *slog.Logger
}

func NewManager(store Store, proc Processor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, proc: proc, logger: logger}
}

// Handle processes job jobID for url. Pipeline failures and panics end in FAILED and are not
// returned as errors. An error means the job could not be started or its terminal status
// could not be stored; the task should then be delivered again.
func (m *Manager) Handle(ctx context.Context, jobID int64, url string) (out Outcome, err error) {
	logger := m.logger.With(slog.Int64("job_id", jobID))

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job.Status.Terminal() {
		logger.Info("job already finished, skipping redelivery", "status", job.Status)
		out = Outcome{Status: job.Status, Skipped: true}
		if job.Result != nil {
			out.Result = *job.Result
		}
		return out, nil
	}
	if url != "" && url != job.SourceURL {
		logger.Warn("task url differs from the job record, using the task url", "task_url", url, "job_url", job.SourceURL)
		job.SourceURL = url
	}

	if _, err := m.store.Transition(ctx, jobID, types.JobProcessing, nil); err != nil {
		return Outcome{}, fmt.Errorf("mark job %d processing: %w", jobID, err)
	}
	logger.Info("job processing", "url", job.SourceURL)

	var (
		artifacts []string
		runErr    error
	)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("pipeline panicked", "panic", p, "stack", string(debug.Stack()))
			artifacts, runErr = nil, types.StageErr(types.KindInternal, fmt.Errorf("panic: %v", p))
		}
		out, err = m.finish(ctx, logger, jobID, artifacts, runErr)
	}()

	artifacts, runErr = m.proc.Process(ctx, job)
	return out, err
}

// finish stores the terminal status. It must not be skipped when ctx was cancelled.
func (m *Manager) finish(ctx context.Context, logger *slog.Logger, jobID int64, artifacts []string, runErr error) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	out := Outcome{Status: types.JobCompleted, Result: types.JobResult{Artifacts: artifacts}}
	if runErr != nil {
		out = Outcome{
			Status: types.JobFailed,
			Result: types.JobResult{Err: &types.JobError{Message: runErr.Error(), Kind: string(types.KindOf(runErr))}},
		}
	}
	if out.Status == types.JobCompleted && out.Result.Artifacts == nil {
		out.Result.Artifacts = []string{}
	}

	if _, err := m.store.Transition(ctx, jobID, out.Status, &out.Result); err != nil {
		logger.Error("store terminal status", "status", out.Status, "error", err)
		return out, fmt.Errorf("mark job %d %s: %w", jobID, out.Status, err)
	}
	if runErr != nil {
		logger.Warn("job failed", "kind", types.KindOf(runErr), "error", runErr)
	} else {
		logger.Info("job completed", "artifacts", len(artifacts))
	}
	return out, nil
}
