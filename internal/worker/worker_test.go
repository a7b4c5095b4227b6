package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/queue"
	"github.com/forPelevin/clipforge/internal/types"
)

type fakeBroker struct {
	mu      sync.Mutex
	tasks   []*queue.Task
	acked   []string
	extends int
}

func (b *fakeBroker) Publish(_ context.Context, name string, payload []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := name + "-" + string(rune('a'+len(b.tasks)))
	b.tasks = append(b.tasks, &queue.Task{ID: id, Name: name, Payload: payload})
	return id, nil
}

func (b *fakeBroker) Claim(context.Context, time.Duration) (*queue.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tasks) == 0 {
		return nil, nil
	}
	t := b.tasks[0]
	b.tasks = b.tasks[1:]
	t.Attempts++
	return t, nil
}

func (b *fakeBroker) Extend(context.Context, string, time.Duration) error {
	b.mu.Lock()
	b.extends++
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) Ack(_ context.Context, id string) error {
	b.mu.Lock()
	b.acked = append(b.acked, id)
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) ackedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.acked...)
}

type handlerFunc func(ctx context.Context, jobID int64, url string) (jobs.Outcome, error)

func (f handlerFunc) Handle(ctx context.Context, jobID int64, url string) (jobs.Outcome, error) {
	return f(ctx, jobID, url)
}

func publishJob(t *testing.T, b *fakeBroker, id int64) string {
	t.Helper()
	payload, err := queue.EncodeProcessVideo(queue.ProcessVideo{JobID: id, YoutubeURL: "https://youtu.be/dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	taskID, _ := b.Publish(context.Background(), queue.ProcessVideoTask, payload)
	return taskID
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name      string
		publish   func(t *testing.T, b *fakeBroker)
		handleErr error
		wantCalls int
		wantAcked int
		wantErr   bool
	}{
		{
			name:      "completed job is acked",
			publish:   func(t *testing.T, b *fakeBroker) { publishJob(t, b, 1) },
			wantCalls: 1,
			wantAcked: 1,
		},
		{
			name:      "handler error leaves task unacked",
			publish:   func(t *testing.T, b *fakeBroker) { publishJob(t, b, 2) },
			handleErr: errors.New("db down"),
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name: "unknown task name is dropped",
			publish: func(t *testing.T, b *fakeBroker) {
				_, _ = b.Publish(context.Background(), "worker.tasks.other", []byte(`{}`))
			},
			wantAcked: 1,
		},
		{
			name: "invalid payload is dropped",
			publish: func(t *testing.T, b *fakeBroker) {
				_, _ = b.Publish(context.Background(), queue.ProcessVideoTask, []byte(`{"job_id":0}`))
			},
			wantAcked: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := &fakeBroker{}
			tc.publish(t, b)
			calls := 0
			p := New(b, handlerFunc(func(_ context.Context, jobID int64, url string) (jobs.Outcome, error) {
				calls++
				if url != "https://youtu.be/dQw4w9WgXcQ" {
					t.Errorf("unexpected url %q", url)
				}
				if tc.handleErr != nil {
					return jobs.Outcome{}, tc.handleErr
				}
				return jobs.Outcome{Status: types.JobCompleted}, nil
			}), Options{}, nil)

			worked, err := p.RunOnce(context.Background(), nil)
			if !worked {
				t.Fatal("expected a task to be claimed")
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if calls != tc.wantCalls {
				t.Fatalf("handler calls = %d, want %d", calls, tc.wantCalls)
			}
			if got := len(b.ackedIDs()); got != tc.wantAcked {
				t.Fatalf("acked = %d, want %d", got, tc.wantAcked)
			}
		})
	}
}

func TestRunOnce_HandlerPanicLeavesTaskUnacked(t *testing.T) {
	b := &fakeBroker{}
	publishJob(t, b, 9)
	p := New(b, handlerFunc(func(context.Context, int64, string) (jobs.Outcome, error) {
		panic("store driver blew up")
	}), Options{}, nil)

	worked, err := p.RunOnce(context.Background(), nil)
	if !worked || err == nil || !strings.Contains(err.Error(), "store driver blew up") {
		t.Fatalf("worked=%v err=%v", worked, err)
	}
	if got := len(b.ackedIDs()); got != 0 {
		t.Fatalf("a panicked task must stay leased, acked %d", got)
	}
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	p := New(&fakeBroker{}, handlerFunc(func(context.Context, int64, string) (jobs.Outcome, error) {
		t.Fatal("handler must not run")
		return jobs.Outcome{}, nil
	}), Options{}, nil)
	worked, err := p.RunOnce(context.Background(), nil)
	if worked || err != nil {
		t.Fatalf("worked=%v err=%v", worked, err)
	}
}

func TestRunOnce_HeartbeatExtendsLease(t *testing.T) {
	b := &fakeBroker{}
	publishJob(t, b, 1)
	p := New(b, handlerFunc(func(context.Context, int64, string) (jobs.Outcome, error) {
		time.Sleep(100 * time.Millisecond)
		return jobs.Outcome{Status: types.JobCompleted}, nil
	}), Options{Lease: 30 * time.Millisecond}, nil)

	if _, err := p.RunOnce(context.Background(), nil); err != nil {
		t.Fatalf("run once: %v", err)
	}
	b.mu.Lock()
	extends := b.extends
	b.mu.Unlock()
	if extends == 0 {
		t.Fatal("expected the lease to be extended while the job ran")
	}
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	b := &fakeBroker{}
	for id := int64(1); id <= 5; id++ {
		publishJob(t, b, id)
	}
	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(b, handlerFunc(func(_ context.Context, jobID int64, _ string) (jobs.Outcome, error) {
		mu.Lock()
		seen[jobID] = true
		if len(seen) == 5 {
			cancel()
		}
		mu.Unlock()
		return jobs.Outcome{Status: types.JobCompleted}, nil
	}), Options{Concurrency: 3, PollInterval: 10 * time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
	if len(seen) != 5 {
		t.Fatalf("handled %d jobs, want 5", len(seen))
	}
	if got := len(b.ackedIDs()); got != 5 {
		t.Fatalf("acked %d tasks, want 5", got)
	}
}
