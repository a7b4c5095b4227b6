package types

import (
	"encoding/json"
	"errors"
	"time"
)

// Segment is one transcription segment; offsets are seconds from the start of the source.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type TrackEntry struct {
	StartSec int
	Title    string
}

// ClipSpec describes one clip to cut from the source video.
type ClipSpec struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	StartSec    float64 `json:"start_s"`
	EndSec      float64 `json:"end_s"`
}

func (c ClipSpec) Start() time.Duration { return Dur(c.StartSec) }
func (c ClipSpec) End() time.Duration   { return Dur(c.EndSec) }

// Metadata is the converged output of both segment-selection branches.
type Metadata struct {
	OriginalURL   string     `json:"original_url"`
	OriginalTitle string     `json:"original_title"`
	Clips         []ClipSpec `json:"clips"`
}

type SourceInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DurationSec float64 `json:"duration"`
}

type SelectionRequest struct {
	Segments     []Segment
	SourceTitle  string
	SourceURL    string
	Prompt       string
	ExtraContext string
}

type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// CanTransition enforces QUEUED -> PROCESSING -> {COMPLETED|FAILED}. PROCESSING may be
// re-entered when a task is redelivered after a worker crash.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobProcessing
	case JobProcessing:
		return to == JobProcessing || to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

// Sources lists the statuses a job may be in before moving to s.
func (s JobStatus) Sources() []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobQueued, JobProcessing, JobCompleted, JobFailed} {
		if from.CanTransition(s) {
			out = append(out, from)
		}
	}
	return out
}

type JobOptions struct {
	Prompt       string `json:"prompt,omitempty"`
	ExtraContext string `json:"context,omitempty"`
	Captions     bool   `json:"captions,omitempty"`
	ShowMode     bool   `json:"show,omitempty"`
}

type Job struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	SourceURL string     `json:"youtube_url"`
	Status    JobStatus  `json:"status"`
	Options   JobOptions `json:"options"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Result    *JobResult `json:"result"`
}

// JobResult is either the ordered artifact list of a completed job or the error of a
// failed one. It encodes as a JSON array or as {"error": ..., "kind": ...}.
type JobResult struct {
	Artifacts []string
	Err       *JobError
}

type JobError struct {
	Message string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

func (r JobResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	if r.Artifacts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Artifacts)
}

func (r *JobResult) UnmarshalJSON(b []byte) error {
	var arts []string
	if err := json.Unmarshal(b, &arts); err == nil {
		*r = JobResult{Artifacts: arts}
		return nil
	}
	var je JobError
	if err := json.Unmarshal(b, &je); err != nil {
		return err
	}
	if je.Message == "" {
		return errors.New("job result: neither an artifact list nor an error")
	}
	*r = JobResult{Err: &je}
	return nil
}

func Dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
