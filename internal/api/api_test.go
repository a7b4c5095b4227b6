package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/queue"
	"github.com/forPelevin/clipforge/internal/store"
	"github.com/forPelevin/clipforge/internal/types"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func newTestServer(t *testing.T) (*store.Store, http.Handler) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	srv := New(st, Options{Presets: prompts.Presets{"default": "pick clips", "show": "pick songs"}})
	return st, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestCreateJob_QueuesAndPublishes(t *testing.T) {
	st, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/jobs", "7",
		`{"youtube_url":"`+testURL+`","prompt":"show","context":"  festival set ","captions":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var job types.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != types.JobQueued || job.OwnerID != 7 || job.Options.Prompt != "show" || job.Options.ExtraContext != "festival set" || !job.Options.Captions {
		t.Fatalf("unexpected job %+v", job)
	}

	task, err := st.Claim(context.Background(), time.Minute)
	if err != nil || task == nil {
		t.Fatalf("expected a published task, got %+v, %v", task, err)
	}
	p, err := queue.DecodeProcessVideo(task.Payload)
	if err != nil || p.JobID != job.ID || p.YoutubeURL != testURL {
		t.Fatalf("unexpected payload %+v, %v", p, err)
	}
}

func TestCreateJob_DefaultsPrompt(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/jobs", "1", `{"youtube_url":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"prompt":"default"`) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestCreateJob_Rejects(t *testing.T) {
	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{name: "no user", user: "", body: `{"youtube_url":"` + testURL + `"}`, want: http.StatusUnauthorized},
		{name: "bad user", user: "alice", body: `{"youtube_url":"` + testURL + `"}`, want: http.StatusUnauthorized},
		{name: "bad json", user: "1", body: `{`, want: http.StatusBadRequest},
		{name: "unknown field", user: "1", body: `{"url":"` + testURL + `"}`, want: http.StatusBadRequest},
		{name: "no video id", user: "1", body: `{"youtube_url":"https://example.com/"}`, want: http.StatusBadRequest},
		{name: "unknown preset", user: "1", body: `{"youtube_url":"` + testURL + `","prompt":"nope"}`, want: http.StatusBadRequest},
	}
	_, h := newTestServer(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/jobs", tc.user, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestCreateJob_AnyPrompt(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	h := New(st, Options{AnyPrompt: true}).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/jobs", "1", `{"youtube_url":"`+testURL+`","prompt":"whatever"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	for _, key := range []string{"../../../../escaped", "a/b", "x.json"} {
		rec = do(t, h, http.MethodPost, "/api/v1/jobs", "1", `{"youtube_url":"`+testURL+`","prompt":"`+key+`"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("prompt %q: status = %d, want 400", key, rec.Code)
		}
	}
	if _, err := st.Claim(context.Background(), time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task, _ := st.Claim(context.Background(), time.Minute); task != nil {
		t.Fatalf("rejected prompts must not queue tasks, got %+v", task)
	}
}

func TestGetAndListJobs_OwnerScoped(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()
	mine, _ := st.SubmitJob(ctx, 1, testURL, types.JobOptions{Prompt: "default"})
	_, _ = st.SubmitJob(ctx, 1, "https://youtu.be/aaaaaaaaaaa", types.JobOptions{Prompt: "default"})
	theirs, _ := st.SubmitJob(ctx, 2, testURL, types.JobOptions{Prompt: "default"})

	rec := do(t, h, http.MethodGet, "/api/v1/jobs/"+itoa(mine.ID), "1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get own job = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/jobs/"+itoa(theirs.ID), "1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other owner's job must be hidden, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/jobs/424242", "1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs?limit=1", "1", "")
	var list []types.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v (%s)", err, rec.Body)
	}
	if rec.Code != http.StatusOK || len(list) != 1 || list[0].OwnerID != 1 || list[0].ID == mine.ID {
		t.Fatalf("expected newest own job, got %d %+v", rec.Code, list)
	}

	for _, q := range []string{"limit=0", "limit=501", "skip=-1", "limit=x"} {
		if rec := do(t, h, http.MethodGet, "/api/v1/jobs?"+q, "1", ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/jobs", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("list without user = %d", rec.Code)
	}
}

func TestJobResultEncoding(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()
	job, _ := st.SubmitJob(ctx, 1, testURL, types.JobOptions{})
	if _, err := st.Transition(ctx, job.ID, types.JobProcessing, nil); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if _, err := st.Transition(ctx, job.ID, types.JobCompleted, &types.JobResult{Artifacts: []string{"output/dQw4w9WgXcQ/1/clip_1_Intro.mp4"}}); err != nil {
		t.Fatalf("completed: %v", err)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/jobs/"+itoa(job.ID), "1", "")
	if !strings.Contains(rec.Body.String(), `"result":["output/dQw4w9WgXcQ/1/clip_1_Intro.mp4"]`) {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
