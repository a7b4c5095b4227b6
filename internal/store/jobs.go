package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forPelevin/clipforge/internal/queue"
	"github.com/forPelevin/clipforge/internal/types"
)

const jobColumns = "id, owner_id, source_url, status, options, result, created_at, updated_at"

// CreateJob inserts a QUEUED job and returns it with its assigned id.
func (s *Store) CreateJob(ctx context.Context, ownerID int64, url string, opts types.JobOptions) (types.Job, error) {
	var job types.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = s.insertJob(ctx, tx, ownerID, url, opts)
		return err
	})
	if err != nil {
		return types.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// SubmitJob inserts a QUEUED job and publishes its process-video task in one transaction,
// so a job row never exists without the task that will run it.
func (s *Store) SubmitJob(ctx context.Context, ownerID int64, url string, opts types.JobOptions) (types.Job, error) {
	var job types.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = s.insertJob(ctx, tx, ownerID, url, opts)
		if err != nil {
			return err
		}
		payload, err := queue.EncodeProcessVideo(queue.ProcessVideo{JobID: job.ID, YoutubeURL: url})
		if err != nil {
			return err
		}
		_, err = s.insertTask(ctx, tx, queue.ProcessVideoTask, payload)
		return err
	})
	if err != nil {
		return types.Job{}, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

func (s *Store) insertJob(ctx context.Context, tx *sql.Tx, ownerID int64, url string, opts types.JobOptions) (types.Job, error) {
	if strings.TrimSpace(url) == "" {
		return types.Job{}, errors.New("source url is required")
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return types.Job{}, fmt.Errorf("encode options: %w", err)
	}
	now := s.now()
	stamp := formatTime(now)

	var id int64
	row := tx.QueryRowContext(ctx, s.rebind(`INSERT INTO jobs (owner_id, source_url, status, options, result, created_at, updated_at)
        VALUES (?, ?, ?, ?, NULL, ?, ?) RETURNING id`),
		ownerID, url, string(types.JobQueued), string(optsJSON), stamp, stamp)
	if err := row.Scan(&id); err != nil {
		return types.Job{}, err
	}
	return types.Job{
		ID:        id,
		OwnerID:   ownerID,
		SourceURL: url,
		Status:    types.JobQueued,
		Options:   opts,
		CreatedAt: parseTime(stamp),
		UpdatedAt: parseTime(stamp),
	}, nil
}

// GetJob returns the job with id or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id int64) (types.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+jobColumns+" FROM jobs WHERE id = ?"), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, ownerID int64, skip, limit int) ([]types.Job, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+jobColumns+" FROM jobs WHERE owner_id = ? ORDER BY id DESC LIMIT ? OFFSET ?"),
		ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// Transition moves job id to status to and stores result. The update is conditional on the
// current status, so concurrent writers cannot skip a lifecycle step.
func (s *Store) Transition(ctx context.Context, id int64, to types.JobStatus, result *types.JobResult) (types.Job, error) {
	sources := to.Sources()
	if len(sources) == 0 {
		return types.Job{}, fmt.Errorf("job %d -> %s: %w", id, to, ErrInvalidTransition)
	}

	var resultJSON sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return types.Job{}, fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	args := []any{string(to), resultJSON, formatTime(s.now()), id}
	placeholders := make([]string, len(sources))
	for i, from := range sources {
		placeholders[i] = "?"
		args = append(args, string(from))
	}
	query := "UPDATE jobs SET status = ?, result = ?, updated_at = ? WHERE id = ? AND status IN (" + strings.Join(placeholders, ", ") + ")"

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return types.Job{}, fmt.Errorf("update job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Job{}, fmt.Errorf("update job %d: %w", id, err)
	}
	if n == 0 {
		current, err := s.GetJob(ctx, id)
		if err != nil {
			return types.Job{}, err
		}
		return types.Job{}, fmt.Errorf("job %d %s -> %s: %w", id, current.Status, to, ErrInvalidTransition)
	}
	return s.GetJob(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (types.Job, error) {
	var (
		job                  types.Job
		status, opts         string
		result               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&job.ID, &job.OwnerID, &job.SourceURL, &status, &opts, &result, &createdAt, &updatedAt); err != nil {
		return types.Job{}, err
	}
	job.Status = types.JobStatus(status)
	if opts != "" {
		if err := json.Unmarshal([]byte(opts), &job.Options); err != nil {
			return types.Job{}, fmt.Errorf("decode options of job %d: %w", job.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		var r types.JobResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return types.Job{}, fmt.Errorf("decode result of job %d: %w", job.ID, err)
		}
		job.Result = &r
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return job, nil
}
