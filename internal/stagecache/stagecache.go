// Package stagecache memoizes pipeline stage outputs on disk. An artifact is either fully
// present at its target path or absent: producers write to a temporary sibling that is
// renamed into place only on success. A lock file per target serializes producers across
// processes.
package stagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const lockRetryDelay = 250 * time.Millisecond

type Cache struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{logger: logger}
}

// File returns immediately with hit=true when target exists. Otherwise produce is called
// with a temporary path in the same directory and extension as target; that file is moved
// onto target when produce succeeds and removed when it fails.
func (c *Cache) File(ctx context.Context, target string, produce func(ctx context.Context, tmpPath string) error) (bool, error) {
	if exists(target) {
		c.logger.DebugContext(ctx, "stage cache hit", "path", target)
		return true, nil
	}
	unlock, err := c.lock(ctx, target)
	if err != nil {
		return false, err
	}
	defer unlock()

	// another worker may have produced it while we waited
	if exists(target) {
		c.logger.DebugContext(ctx, "stage cache hit after lock", "path", target)
		return true, nil
	}

	tmp := tempPath(target)
	if err := produce(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if !exists(tmp) {
		return false, fmt.Errorf("stage cache: producer wrote nothing for %s", filepath.Base(target))
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("stage cache: rename %s: %w", filepath.Base(target), err)
	}
	c.logger.DebugContext(ctx, "stage cache stored", "path", target)
	return false, nil
}

// JSON is File for values persisted as indented JSON.
func JSON[T any](ctx context.Context, c *Cache, target string, produce func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if b, err := os.ReadFile(target); err == nil {
		if err := json.Unmarshal(b, &out); err != nil {
			return out, fmt.Errorf("stage cache: decode %s: %w", target, err)
		}
		c.logger.DebugContext(ctx, "stage cache hit", "path", target)
		return out, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("stage cache: read %s: %w", target, err)
	}

	var produced bool
	_, err := c.File(ctx, target, func(ctx context.Context, tmp string) error {
		v, err := produce(ctx)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(v, "", "    ")
		if err != nil {
			return fmt.Errorf("stage cache: encode %s: %w", filepath.Base(target), err)
		}
		out = v
		produced = true
		return os.WriteFile(tmp, b, 0o644)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if produced {
		return out, nil
	}
	// produced concurrently by another holder of the lock
	b, err := os.ReadFile(target)
	if err != nil {
		return out, fmt.Errorf("stage cache: read %s: %w", target, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("stage cache: decode %s: %w", target, err)
	}
	return out, nil
}

// Key hashes variable stage inputs into a short, filename-safe token.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func (c *Cache) lock(ctx context.Context, target string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("stage cache: ensure dir: %w", err)
	}
	fl := flock.New(lockPath(target))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("stage cache: lock %s: %w", filepath.Base(target), err)
	}
	if !ok {
		return nil, fmt.Errorf("stage cache: lock %s: not acquired", filepath.Base(target))
	}
	return func() { _ = fl.Unlock() }, nil
}

// lockPath is hidden so run folders list only artifacts.
func lockPath(target string) string {
	dir, base := filepath.Split(target)
	return filepath.Join(dir, "."+base+".lock")
}

func tempPath(target string) string {
	dir, base := filepath.Split(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf(".%s.partial-%s%s", stem, uuid.NewString()[:8], ext))
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
