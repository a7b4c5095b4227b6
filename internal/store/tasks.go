package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipforge/internal/queue"
)

var _ queue.Broker = (*Store)(nil)

// Publish enqueues a task and returns its id.
func (s *Store) Publish(ctx context.Context, name string, payload []byte) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.insertTask(ctx, tx, name, payload)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	return id, nil
}

func (s *Store) insertTask(ctx context.Context, tx *sql.Tx, name string, payload []byte) (string, error) {
	if name == "" {
		return "", errors.New("task name is required")
	}
	id := uuid.NewString()
	now := s.now().UnixNano()
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO tasks (id, name, payload, attempts, available_at, leased_until, created_at)
        VALUES (?, ?, ?, 0, ?, 0, ?)`), id, name, string(payload), now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Claim leases the oldest task that is neither leased nor delayed. The conditional update
// makes the claim atomic between concurrent workers; a lost race reads as an empty queue.
func (s *Store) Claim(ctx context.Context, lease time.Duration) (*queue.Task, error) {
	if lease <= 0 {
		return nil, errors.New("claim: lease must be positive")
	}
	now := s.now().UnixNano()
	query := s.rebind(`UPDATE tasks SET leased_until = ?, attempts = attempts + 1
        WHERE id = (
            SELECT id FROM tasks
            WHERE available_at <= ? AND leased_until <= ?
            ORDER BY created_at, id
            LIMIT 1
        ) AND leased_until <= ?
        RETURNING id, name, payload, attempts`)

	var (
		task    queue.Task
		payload string
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, now+lease.Nanoseconds(), now, now, now).
			Scan(&task.ID, &task.Name, &payload, &task.Attempts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	task.Payload = []byte(payload)
	return &task, nil
}

// Extend pushes the lease of a claimed task forward.
func (s *Store) Extend(ctx context.Context, id string, lease time.Duration) error {
	res, err := s.exec(ctx, "UPDATE tasks SET leased_until = ? WHERE id = ?", s.now().Add(lease).UnixNano(), id)
	if err != nil {
		return fmt.Errorf("extend task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// Ack removes a finished task. Acknowledging a task that is already gone is not an error.
func (s *Store) Ack(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("ack task %s: %w", id, err)
	}
	return nil
}

// PendingTasks counts tasks that are still waiting or leased.
func (s *Store) PendingTasks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}
