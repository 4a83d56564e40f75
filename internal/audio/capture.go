package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

const (
	webmName = "meeting_audio.webm"
	wavName  = "meeting_audio.wav"
)

type Config struct {
	// Dir receives the raw and converted recordings.
	Dir         string
	FFmpeg      string
	Timeslice   int
	Transcriber *Transcriber
}

// Capturer records remote audio and transcribes it at the end.
type Capturer struct {
	surface browser.Surface
	cfg     Config
	runner  Runner
	logger  *slog.Logger

	buf Buffer

	mu sync.Mutex
	ev session.Events
}

func NewCapturer(surface browser.Surface, runner Runner, cfg Config, logger *slog.Logger) *Capturer {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	return &Capturer{
		surface: surface,
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
	}
}

func (c *Capturer) Kind() transcript.Kind { return transcript.KindAudio }

// Prepare installs the track interceptor before any meeting script runs.
func (c *Capturer) Prepare(ctx context.Context) error {
	c.surface.OnConsole(func(text string) {
		if strings.HasPrefix(text, "[clerk]") {
			c.logger.Info("page", "message", text)
		}
	})
	if err := c.surface.Bind(ctx, BindingName, c.receive); err != nil {
		return fmt.Errorf("bind %s: %w", BindingName, err)
	}
	if err := c.surface.AddInitScript(ctx, InterceptorScript(BindingName, c.cfg.Timeslice)); err != nil {
		return fmt.Errorf("install interceptor: %w", err)
	}
	return nil
}

func (c *Capturer) receive(payload string) {
	chunk, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.logger.Warn("malformed audio chunk", "error", err)
		return
	}
	c.buf.Append(chunk)

	c.mu.Lock()
	ev := c.ev
	c.mu.Unlock()
	if ev != nil {
		ev.Activity(0, 1, len(chunk))
	}
	c.logger.Debug("audio chunk", "n", c.buf.Len(), "bytes", len(chunk))
}

// Start connects activity reporting. Recording itself begins as soon as
// the page receives a remote audio track.
func (c *Capturer) Start(ctx context.Context, ev session.Events) error {
	c.mu.Lock()
	c.ev = ev
	c.mu.Unlock()
	return nil
}

// Finalize writes the recording, converts it and runs the transcriber.
// Conversion failure leaves the raw recording on disk. Transcriber failures
// return an empty transcript together with the error.
func (c *Capturer) Finalize(ctx context.Context) (transcript.Transcript, error) {
	c.mu.Lock()
	c.ev = nil
	c.mu.Unlock()

	empty := transcript.Transcript{Kind: transcript.KindAudio}

	data := c.buf.Bytes()
	if len(data) == 0 {
		return empty, ErrNoAudio
	}

	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return empty, fmt.Errorf("create audio dir: %w", err)
	}
	webm := filepath.Join(c.cfg.Dir, webmName)
	if err := os.WriteFile(webm, data, 0o644); err != nil {
		return empty, fmt.Errorf("write recording: %w", err)
	}
	c.logger.Info("recording saved", "path", webm, "chunks", c.buf.Len(), "bytes", len(data))

	wav := filepath.Join(c.cfg.Dir, wavName)
	if err := Convert(ctx, c.runner, c.cfg.FFmpeg, webm, wav); err != nil {
		return empty, fmt.Errorf("convert recording (raw kept at %s): %w", webm, err)
	}

	res, err := c.cfg.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		return empty, err
	}

	tr := transcript.Transcript{
		Kind:     transcript.KindAudio,
		Language: res.Language,
		Duration: res.Duration,
	}
	for _, s := range res.Segments {
		tr.Segments = append(tr.Segments, transcript.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		})
	}
	tr.NoSpeech = len(tr.Segments) == 0
	c.logger.Info("audio transcribed", "segments", len(tr.Segments), "language", tr.Language, "duration", tr.Duration)
	return tr, nil
}
