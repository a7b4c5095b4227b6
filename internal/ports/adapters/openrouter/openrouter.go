package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	referer string
	title   string
	timeout time.Duration
	client  *http.Client
}

const defaultRequestTimeout = 5 * time.Minute

type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Referer string
	Title   string
	Timeout time.Duration
}

func New(o Options) *Adapter {
	if o.Model == "" {
		o.Model = "google/gemini-2.5-pro"
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultRequestTimeout
	}
	return &Adapter{
		key:     o.APIKey,
		model:   o.Model,
		baseURL: normalizeBaseURL(o.BaseURL),
		referer: o.Referer,
		title:   o.Title,
		timeout: o.Timeout,
		client:  &http.Client{},
	}
}

func (a *Adapter) Select(ctx context.Context, req types.SelectionRequest) (types.Metadata, error) {
	if len(req.Segments) == 0 {
		return types.Metadata{}, errors.New("openrouter: empty transcription")
	}
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": BuildPrompt(req)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.Metadata{}, fmt.Errorf("marshal request: %w", err)
	}

	content, err := a.complete(ctx, body)
	if err != nil {
		return types.Metadata{}, err
	}
	clips, err := decodeClips(content)
	if err != nil {
		return types.Metadata{}, err
	}
	return types.Metadata{
		OriginalURL:   req.SourceURL,
		OriginalTitle: req.SourceTitle,
		Clips:         clips,
	}, nil
}

func (a *Adapter) complete(ctx context.Context, body []byte) (string, error) {
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")
	if a.referer != "" {
		req.Header.Set("HTTP-Referer", a.referer)
	}
	if a.title != "" {
		req.Header.Set("X-Title", a.title)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", a.timeout, a.model)
		}
		return "", fmt.Errorf("openrouter request: %s", redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: response has no choices")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

// BuildPrompt assembles the template, the optional user context and the timestamped
// transcription into the single message sent to the model.
func BuildPrompt(req types.SelectionRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if ctx := strings.TrimSpace(req.ExtraContext); ctx != "" {
		b.WriteString("\n\nAdditional Context (User-provided):\n---\n")
		b.WriteString(ctx)
		b.WriteString("\n---")
	}
	b.WriteString("\n\nFull Transcription:\n---\n")
	for _, s := range req.Segments {
		fmt.Fprintf(&b, "[%.2fs - %.2fs] %s\n", s.Start, s.End, strings.TrimSpace(s.Text))
	}
	b.WriteString("---")
	return b.String()
}

// seconds accepts both JSON numbers and numeric strings; models emit either.
type seconds float64

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("invalid seconds value %s", string(b))
	}
	*s = seconds(v)
	return nil
}

func decodeClips(content string) ([]types.ClipSpec, error) {
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var out struct {
		Clips []struct {
			Title       string  `json:"title"`
			Description string  `json:"description"`
			StartSec    seconds `json:"start_s"`
			EndSec      seconds `json:"end_s"`
		} `json:"clips"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("openrouter: decode clips: %w (payload: %q)", err, truncate(clean, 200))
	}
	if len(out.Clips) == 0 {
		return nil, errors.New("openrouter: model returned no clips")
	}
	res := make([]types.ClipSpec, 0, len(out.Clips))
	for i, c := range out.Clips {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = fmt.Sprintf("Clip %d", i+1)
		}
		res = append(res, types.ClipSpec{
			Title:       title,
			Description: strings.TrimSpace(c.Description),
			StartSec:    float64(c.StartSec),
			EndSec:      float64(c.EndSec),
		})
	}
	return res, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
