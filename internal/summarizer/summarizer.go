// Package summarizer turns a meeting transcript into Minutes of Meeting
// using the Anthropic Messages API.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/anthropic"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
	maxTokens       = 4096
)

type Summarizer struct {
	llm    *anthropic.Client
	logger *slog.Logger

	// Attempts bounds calls made while the service reports overload.
	Attempts int
	// Backoff is the wait before the first retry; it doubles per retry.
	Backoff time.Duration
	// Timeout bounds each individual call. Zero means no extra bound.
	Timeout time.Duration
}

func New(llm *anthropic.Client, timeout time.Duration, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		llm:      llm,
		logger:   logger,
		Attempts: defaultAttempts,
		Backoff:  defaultBackoff,
		Timeout:  timeout,
	}
}

// Summarize returns the minutes for a rendered transcript. Overload
// responses are retried with exponential backoff; any other failure, or
// running out of attempts, is returned.
func (s *Summarizer) Summarize(ctx context.Context, title string, date time.Time, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty transcript")
	}

	messages := []anthropic.Message{
		{Role: "user", Content: fmt.Sprintf(userPrompt, title, date.Format("2006-01-02 15:04 MST"), text)},
	}

	s.logger.Info("summarizing transcript",
		"title", title,
		"model", s.llm.Model(),
		"transcript_len", len(text),
	)

	attempts := max(s.Attempts, 1)
	wait := s.Backoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.logger.Warn("summarizer overloaded, retrying", "attempt", i+1, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", fmt.Errorf("summarize: %w", ctx.Err())
			}
			wait *= 2
		}

		summary, err := s.call(ctx, messages)
		if err == nil {
			s.logger.Info("summary received", "attempts", i+1, "summary_len", len(summary))
			return summary, nil
		}
		lastErr = err

		var apiErr *anthropic.APIError
		if !errors.As(err, &apiErr) || !apiErr.Overloaded() {
			return "", fmt.Errorf("summarize: %w", err)
		}
	}
	return "", fmt.Errorf("summarize: gave up after %d attempts: %w", attempts, lastErr)
}

func (s *Summarizer) call(ctx context.Context, messages []anthropic.Message) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	out, err := s.llm.Complete(ctx, systemPrompt, messages, maxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
