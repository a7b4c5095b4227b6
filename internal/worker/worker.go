// Package worker pulls process-video tasks from the broker and runs them through the job
// lifecycle. A task is acknowledged once its job has a terminal status; otherwise the lease
// runs out and the task is delivered again.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/queue"
)

// Handler runs one job. *jobs.Manager implements it.
type Handler interface {
	Handle(ctx context.Context, jobID int64, url string) (jobs.Outcome, error)
}

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
}

type Pool struct {
	broker  queue.Broker
	handler Handler
	opts    Options
	logger  *slog.Logger
}

func New(broker queue.Broker, handler Handler, opts Options, logger *slog.Logger) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{broker: broker, handler: handler, opts: opts, logger: logger}
}

// Run starts the workers and blocks until ctx is cancelled. A task in flight when ctx is
// cancelled still gets its terminal status written.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", "concurrency", p.opts.Concurrency, "lease", p.opts.Lease)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		worker := i + 1
		g.Go(func() error {
			p.loop(gctx, p.logger.With(slog.Int("worker", worker)))
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := p.RunOnce(ctx, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("task round failed", "error", err)
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one task. It reports whether a task was claimed.
func (p *Pool) RunOnce(ctx context.Context, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = p.logger
	}
	task, err := p.broker.Claim(ctx, p.opts.Lease)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if task == nil {
		return false, nil
	}
	logger = logger.With(slog.String("task_id", task.ID), slog.Int("attempt", task.Attempts))

	if task.Name != queue.ProcessVideoTask {
		logger.Warn("dropping task with unknown name", "name", task.Name)
		return true, p.ack(ctx, task.ID)
	}
	payload, err := queue.DecodeProcessVideo(task.Payload)
	if err != nil {
		logger.Warn("dropping task with invalid payload", "error", err)
		return true, p.ack(ctx, task.ID)
	}

	stop := p.heartbeat(ctx, task.ID, logger)
	out, err := p.handle(ctx, payload, logger)
	stop()
	if err != nil {
		// Leave the task leased; it comes back once the lease expires.
		return true, fmt.Errorf("job %d: %w", payload.JobID, err)
	}
	logger.Info("task done", "job_id", payload.JobID, "status", out.Status, "skipped", out.Skipped)
	return true, p.ack(ctx, task.ID)
}

// handle keeps a handler panic from taking the worker down; the task stays unacked.
func (p *Pool) handle(ctx context.Context, payload queue.ProcessVideo, logger *slog.Logger) (out jobs.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "job_id", payload.JobID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, payload.JobID, payload.YoutubeURL)
}

func (p *Pool) ack(ctx context.Context, id string) error {
	if err := p.broker.Ack(context.WithoutCancel(ctx), id); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// heartbeat extends the lease at a third of its length until stop is called.
func (p *Pool) heartbeat(ctx context.Context, id string, logger *slog.Logger) (stop func()) {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	interval := p.opts.Lease / 3
	if interval <= 0 {
		interval = p.opts.Lease
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := p.broker.Extend(hbCtx, id, p.opts.Lease); err != nil && hbCtx.Err() == nil {
					logger.Warn("extend lease", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
