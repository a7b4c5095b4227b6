// Package queue defines the task contract between the API and the workers. Delivery is
// at least once: a claimed task that is not acknowledged before its lease runs out is
// handed out again.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProcessVideoTask is the only task the workers understand.
const ProcessVideoTask = "worker.tasks.process_video_task"

type Task struct {
	ID       string
	Name     string
	Payload  []byte
	Attempts int
}

type Broker interface {
	Publish(ctx context.Context, name string, payload []byte) (string, error)
	// Claim leases the oldest available task. It returns nil when there is none.
	Claim(ctx context.Context, lease time.Duration) (*Task, error)
	Extend(ctx context.Context, id string, lease time.Duration) error
	Ack(ctx context.Context, id string) error
}

// ProcessVideo is the keyword payload of ProcessVideoTask.
type ProcessVideo struct {
	JobID      int64  `json:"job_id"`
	YoutubeURL string `json:"youtube_url"`
}

func EncodeProcessVideo(p ProcessVideo) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func DecodeProcessVideo(b []byte) (ProcessVideo, error) {
	var p ProcessVideo
	if err := json.Unmarshal(b, &p); err != nil {
		return ProcessVideo{}, fmt.Errorf("decode %s payload: %w", ProcessVideoTask, err)
	}
	return p, p.validate()
}

func (p ProcessVideo) validate() error {
	if p.JobID <= 0 {
		return errors.New("payload: job_id must be positive")
	}
	if strings.TrimSpace(p.YoutubeURL) == "" {
		return errors.New("payload: youtube_url is required")
	}
	return nil
}
