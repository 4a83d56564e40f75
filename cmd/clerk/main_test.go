package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/MikeSquared-Agency/clerk/internal/audio"
	"github.com/MikeSquared-Agency/clerk/internal/browser/browsertest"
	"github.com/MikeSquared-Agency/clerk/internal/captions"
	"github.com/MikeSquared-Agency/clerk/internal/config"
	"github.com/MikeSquared-Agency/clerk/internal/meeting"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.Config{Platform: "meet", Strategy: "captions", EmailTo: "env@example.com"}
	err := applyFlags(&cfg, []string{
		"-url", "https://teams.microsoft.com/l/meetup-join/x",
		"-email", "flag@example.com",
		"-id", "42",
		"-platform", "Teams",
		"-strategy", "AUDIO",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MeetingURL == "" || cfg.EmailTo != "flag@example.com" || cfg.MeetingID != "42" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Platform != "teams" || cfg.Strategy != "audio" {
		t.Errorf("expected lower-cased platform/strategy, got %q/%q", cfg.Platform, cfg.Strategy)
	}
}

func TestApplyFlags_KeepsEnvironment(t *testing.T) {
	cfg := config.Config{EmailTo: "env@example.com", Platform: "meet"}
	if err := applyFlags(&cfg, nil); err != nil {
		t.Fatal(err)
	}
	if cfg.EmailTo != "env@example.com" {
		t.Errorf("environment value overwritten: %q", cfg.EmailTo)
	}
}

func TestValidate(t *testing.T) {
	ok := config.Config{MeetingURL: "https://meet.google.com/abc", Strategy: "captions", AnthropicAPIKey: "k"}
	if err := validate(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no url", func(c *config.Config) { c.MeetingURL = "" }},
		{"bad strategy", func(c *config.Config) { c.Strategy = "video" }},
		{"no api key", func(c *config.Config) { c.AnthropicAPIKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ok
			tt.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewCapturer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	platform, err := meeting.ForName("teams", "Clerk", meeting.Timeouts{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New("", "teams", "https://teams.microsoft.com/x", transcript.KindCaptions)

	c := newCapturer(config.Config{Strategy: "captions"}, sess, browsertest.New(), platform, logger)
	if _, ok := c.(*captions.Capturer); !ok || c.Kind() != transcript.KindCaptions {
		t.Errorf("expected caption capturer, got %T", c)
	}

	c = newCapturer(config.Config{Strategy: "audio", AudioDir: t.TempDir()}, sess, browsertest.New(), platform, logger)
	if _, ok := c.(*audio.Capturer); !ok || c.Kind() != transcript.KindAudio {
		t.Errorf("expected audio capturer, got %T", c)
	}
}
