package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/queue"
	"github.com/forPelevin/clipforge/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "clipforge.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	got := s.rebind("UPDATE jobs SET status = ? WHERE id = ? AND status IN (?, ?)")
	if got != "UPDATE jobs SET status = $1 WHERE id = $2 AND status IN ($3, $4)" {
		t.Fatalf("rebind = %q", got)
	}
	s.dialect = dialectSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query must not change, got %q", got)
	}
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipforge.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	job, err := s.CreateJob(context.Background(), 1, "https://youtu.be/dQw4w9WgXcQ", types.JobOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = s.Close()

	s, err = Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetJob(context.Background(), job.ID); err != nil {
		t.Fatalf("job lost after reopen: %v", err)
	}
}

func TestJobs_CreateGetList(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	opts := types.JobOptions{Prompt: "show", ExtraContext: "live set", Captions: true}
	first, err := s.CreateJob(ctx, 7, "https://youtu.be/aaaaaaaaaaa", opts)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID <= 0 || first.Status != types.JobQueued || first.Result != nil {
		t.Fatalf("unexpected new job %+v", first)
	}
	clock.Advance(time.Second)
	if _, err := s.CreateJob(ctx, 7, "https://youtu.be/bbbbbbbbbbb", types.JobOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateJob(ctx, 8, "https://youtu.be/ccccccccccc", types.JobOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetJob(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Options != opts || got.OwnerID != 7 || !got.CreatedAt.Equal(clock.now.Add(-time.Second)) {
		t.Fatalf("unexpected job %+v", got)
	}

	list, err := s.ListJobs(ctx, 7, 0, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SourceURL != "https://youtu.be/bbbbbbbbbbb" {
		t.Fatalf("expected owner's jobs newest first, got %+v", list)
	}
	page, err := s.ListJobs(ctx, 7, 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != first.ID {
		t.Fatalf("unexpected page %+v, %v", page, err)
	}
	none, err := s.ListJobs(ctx, 99, 0, 10)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v, %v", none, err)
	}

	if _, err := s.GetJob(ctx, 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobs_Transition(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	job, err := s.CreateJob(ctx, 1, "https://youtu.be/dQw4w9WgXcQ", types.JobOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Transition(ctx, job.ID, types.JobCompleted, &types.JobResult{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("QUEUED -> COMPLETED must be rejected, got %v", err)
	}
	if _, err := s.Transition(ctx, job.ID, types.JobProcessing, nil); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID, types.JobProcessing, nil); err != nil {
		t.Fatalf("re-entering processing must be allowed: %v", err)
	}
	done, err := s.Transition(ctx, job.ID, types.JobCompleted, &types.JobResult{Artifacts: []string{"output/x/1/clip_1_a.mp4"}})
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if done.Status != types.JobCompleted || done.Result == nil || done.Result.Artifacts[0] != "output/x/1/clip_1_a.mp4" {
		t.Fatalf("unexpected completed job %+v", done)
	}
	if _, err := s.Transition(ctx, job.ID, types.JobFailed, &types.JobResult{Err: &types.JobError{Message: "late"}}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal jobs must not change, got %v", err)
	}
	if _, err := s.Transition(ctx, 999, types.JobProcessing, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobs_FailedResultRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, 1, "https://youtu.be/dQw4w9WgXcQ", types.JobOptions{})
	if _, err := s.Transition(ctx, job.ID, types.JobProcessing, nil); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID, types.JobFailed, &types.JobResult{Err: &types.JobError{Message: "ffmpeg exited 1", Kind: "render"}}); err != nil {
		t.Fatalf("to failed: %v", err)
	}
	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Result == nil || got.Result.Err == nil || got.Result.Err.Kind != "render" || got.Result.Artifacts != nil {
		t.Fatalf("unexpected failed result %+v", got.Result)
	}
}

func TestTasks_ClaimLeaseAck(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Claim(ctx, time.Minute)
	if err != nil || empty != nil {
		t.Fatalf("empty queue must claim nothing, got %+v, %v", empty, err)
	}

	firstID, err := s.Publish(ctx, "a", []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	clock.Advance(time.Millisecond)
	secondID, err := s.Publish(ctx, "b", []byte(`{"n":2}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	task, err := s.Claim(ctx, time.Minute)
	if err != nil || task == nil {
		t.Fatalf("claim: %+v, %v", task, err)
	}
	if task.ID != firstID || task.Name != "a" || string(task.Payload) != `{"n":1}` || task.Attempts != 1 {
		t.Fatalf("expected oldest task first, got %+v", task)
	}
	next, err := s.Claim(ctx, time.Minute)
	if err != nil || next == nil || next.ID != secondID {
		t.Fatalf("expected second task, got %+v, %v", next, err)
	}
	if none, _ := s.Claim(ctx, time.Minute); none != nil {
		t.Fatalf("leased tasks must not be claimed again, got %+v", none)
	}

	if err := s.Ack(ctx, secondID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := s.Ack(ctx, secondID); err != nil {
		t.Fatalf("second ack must be a no-op: %v", err)
	}

	clock.Advance(2 * time.Minute)
	again, err := s.Claim(ctx, time.Minute)
	if err != nil || again == nil || again.ID != firstID || again.Attempts != 2 {
		t.Fatalf("expired lease must redeliver the task, got %+v, %v", again, err)
	}
	if n, _ := s.PendingTasks(ctx); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestTasks_ExtendKeepsLease(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()
	id, _ := s.Publish(ctx, "a", []byte("{}"))
	if _, err := s.Claim(ctx, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	clock.Advance(50 * time.Second)
	if err := s.Extend(ctx, id, time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	clock.Advance(50 * time.Second)
	if task, _ := s.Claim(ctx, time.Minute); task != nil {
		t.Fatalf("extended lease must hold, got %+v", task)
	}
	if err := s.Extend(ctx, "missing", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitJob_PublishesTask(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	job, err := s.SubmitJob(ctx, 3, "https://youtu.be/dQw4w9WgXcQ", types.JobOptions{Prompt: "default"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	task, err := s.Claim(ctx, time.Minute)
	if err != nil || task == nil {
		t.Fatalf("claim: %+v, %v", task, err)
	}
	if task.Name != queue.ProcessVideoTask {
		t.Fatalf("task name = %q", task.Name)
	}
	p, err := queue.DecodeProcessVideo(task.Payload)
	if err != nil || p.JobID != job.ID || p.YoutubeURL != job.SourceURL {
		t.Fatalf("unexpected payload %+v, %v", p, err)
	}
}

func TestTasks_ConcurrentClaimsAreExclusive(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	const n = 10
	for i := 0; i < n; i++ {
		if _, err := s.Publish(ctx, "t", []byte("{}")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := s.Claim(ctx, time.Minute)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), n)
	}
	for id, c := range seen {
		if c != 1 {
			t.Fatalf("task %s claimed %d times", id, c)
		}
	}
}
