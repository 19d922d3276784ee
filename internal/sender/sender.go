package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/tracyhatemice/labelhook/internal/message"
)

const (
	// BatchSize is the maximum number of embeds per webhook call.
	BatchSize = 3
	// MaxDescription is the maximum embed description length in characters.
	MaxDescription = 2000
	// SnipMarker is appended to descriptions cut at MaxDescription.
	SnipMarker = "\n**<--- SNIP --->**"
)

// Embed is one title/description block of a webhook payload.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DeliveryError is returned when a webhook call fails.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook post: %v", e.Err)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sender posts email summaries to a chat webhook.
type Sender struct {
	url    string
	extra  map[string]any
	delay  time.Duration
	client *http.Client
	logger *slog.Logger
}

// New creates a webhook sender. extra is merged into the top level of every
// payload; delay is the pause after each batch (zero disables it).
func New(url string, extra map[string]any, delay time.Duration, logger *slog.Logger) *Sender {
	return &Sender{
		url:    url,
		extra:  maps.Clone(extra),
		delay:  delay,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Chunk splits items into consecutive groups of at most n, keeping order.
// It panics if n is less than 1, as slices.Chunk does.
func Chunk[T any](items []T, n int) [][]T {
	if n < 1 {
		panic("sender: chunk size must be at least 1")
	}
	chunks := make([][]T, 0, (len(items)+n-1)/n)
	for i := 0; i < len(items); i += n {
		chunks = append(chunks, items[i:min(i+n, len(items))])
	}
	return chunks
}

// Truncate caps body at MaxDescription characters, ending cut bodies with
// SnipMarker.
func Truncate(body string) string {
	if utf8.RuneCountInString(body) <= MaxDescription {
		return body
	}
	keep := MaxDescription - utf8.RuneCountInString(SnipMarker)
	return string([]rune(body)[:keep]) + SnipMarker
}

// Notify delivers emails in batches of BatchSize. The first failed batch
// aborts delivery of the rest.
func (s *Sender) Notify(ctx context.Context, emails []message.Email) error {
	for i, chunk := range Chunk(emails, BatchSize) {
		embeds := make([]Embed, 0, len(chunk))
		for _, e := range chunk {
			embeds = append(embeds, Embed{Title: e.Subject, Description: Truncate(e.Body)})
		}

		if err := s.post(ctx, s.payload("embeds", embeds)); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		s.logger.Info("delivered batch", "batch", i+1, "embeds", len(embeds))

		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Send posts a single plain message.
func (s *Sender) Send(ctx context.Context, content string) error {
	return s.post(ctx, s.payload("content", content))
}

func (s *Sender) payload(key string, value any) map[string]any {
	data := map[string]any{key: value}
	maps.Copy(data, s.extra)
	return data
}

func (s *Sender) pause(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Sender) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("webhook request failed", "payload", string(body), "error", err)
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		s.logger.Error("webhook rejected payload",
			"status", resp.StatusCode,
			"payload", string(body),
			"response", string(respBody),
		)
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
