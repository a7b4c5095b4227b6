// Package prompts loads the analysis prompt presets: every *.txt file in a directory, keyed
// by its file name without the extension.
package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultKey is the preset used when none is requested.
const DefaultKey = "default"

var reKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CheckKey rejects keys that are not a plain file name stem. Keys name cache files and run
// folders, so they must never carry path separators or dots.
func CheckKey(key string) error {
	if !reKey.MatchString(key) {
		return fmt.Errorf("invalid prompt preset %q: only letters, digits, '_' and '-' are allowed", key)
	}
	return nil
}

type Presets map[string]string

// Load reads all presets in dir. A missing directory yields an empty set.
func Load(dir string) (Presets, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Presets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompts dir: %w", err)
	}
	out := Presets{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", e.Name(), err)
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			continue
		}
		out[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = text
	}
	return out, nil
}

// Get returns the preset for key; an empty key means DefaultKey.
func (p Presets) Get(key string) (string, error) {
	if key == "" {
		key = DefaultKey
	}
	text, ok := p[key]
	if !ok {
		return "", fmt.Errorf("prompt preset %q not found (available: %s)", key, strings.Join(p.Keys(), ", "))
	}
	return text, nil
}

func (p Presets) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
