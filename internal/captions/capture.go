package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// StopPhrase spoken or typed into captions ends the session. It is never
// written to the transcript.
const StopPhrase = "stop recording"

type Config struct {
	Observer ObserverConfig

	// Polling selects the interval-based stability check.
	Polling      bool
	Debounce     time.Duration
	PollInterval time.Duration
	StableChecks int
	Cutoff       time.Duration

	// Tick is how often stability is evaluated.
	Tick time.Duration
	// InstallRetries bounds how many times the observer is retried while
	// the caption region has not rendered yet.
	InstallRetries  int
	InstallInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 800 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 800 * time.Millisecond
	}
	if c.StableChecks <= 0 {
		c.StableChecks = 3
	}
	if c.Cutoff <= 0 {
		c.Cutoff = 10 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
	if c.InstallRetries <= 0 {
		c.InstallRetries = 10
	}
	if c.InstallInterval <= 0 {
		c.InstallInterval = 2 * time.Second
	}
	if c.Observer.Binding == "" {
		c.Observer.Binding = BindingName
	}
	return c
}

// Capturer scrapes live captions from the page.
type Capturer struct {
	surface browser.Surface
	cfg     Config
	logger  *slog.Logger

	rec     *Reconciler
	builder *transcript.Builder

	// Inbound bridge from the page. The binding callback only enqueues.
	qmu    sync.Mutex
	queue  []Mutation
	notify chan struct{}

	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	started   bool
	stopHeard bool
}

func NewCapturer(surface browser.Surface, cfg Config, logger *slog.Logger) *Capturer {
	cfg = cfg.withDefaults()
	var st Stability = NewDebounce(cfg.Debounce)
	if cfg.Polling {
		st = NewPolling(cfg.PollInterval, cfg.StableChecks)
	}
	return &Capturer{
		surface: surface,
		cfg:     cfg,
		logger:  logger,
		rec:     NewReconciler(st, cfg.Cutoff),
		builder: transcript.NewBuilder(transcript.KindCaptions),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *Capturer) Kind() transcript.Kind { return transcript.KindCaptions }

// Prepare registers the page binding so it survives the navigation into
// the meeting.
func (c *Capturer) Prepare(ctx context.Context) error {
	c.surface.OnConsole(func(text string) {
		if strings.HasPrefix(text, "[clerk]") {
			c.logger.Debug("page", "message", text)
		}
	})
	if err := c.surface.Bind(ctx, c.cfg.Observer.Binding, c.receive); err != nil {
		return fmt.Errorf("bind %s: %w", c.cfg.Observer.Binding, err)
	}
	return nil
}

func (c *Capturer) receive(payload string) {
	var m Mutation
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		c.logger.Warn("malformed caption message", "error", err)
		return
	}
	c.qmu.Lock()
	c.queue = append(c.queue, m)
	c.qmu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Capturer) drain() []Mutation {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Start installs the page observer and runs the reconcile loop until
// Finalize. A caption region that never appears is not an error: the
// capturer idles and the session relies on its other end conditions.
func (c *Capturer) Start(ctx context.Context, ev session.Events) error {
	c.started = true
	go c.install(ctx)
	go c.loop(ev)
	return nil
}

func (c *Capturer) install(ctx context.Context) {
	script := ObserverScript(c.cfg.Observer)
	for attempt := 1; attempt <= c.cfg.InstallRetries; attempt++ {
		var result string
		err := c.surface.Evaluate(ctx, script, &result)
		switch {
		case err != nil:
			c.logger.Warn("caption observer install failed", "attempt", attempt, "error", err)
		case result == observerMissing:
			c.logger.Debug("caption region not rendered yet", "attempt", attempt)
		default:
			c.logger.Info("caption observer attached", "result", result)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-time.After(c.cfg.InstallInterval):
		}
	}
	c.logger.Warn("caption region not found, capturing nothing", "regions", c.cfg.Observer.Regions)
}

func (c *Capturer) loop(ev session.Events) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.notify:
			c.apply(ev)
		case now := <-ticker.C:
			c.append(ev, c.rec.Tick(now))
		case <-c.stop:
			c.apply(ev)
			c.append(ev, c.rec.Flush())
			return
		}
	}
}

func (c *Capturer) apply(ev session.Events) {
	for _, m := range c.drain() {
		ev.Activity(0, 0, 0)
		c.append(ev, c.rec.Observe(m, time.Now()))
	}
}

func (c *Capturer) append(ev session.Events, deltas []Delta) {
	for _, d := range deltas {
		// The phrase may arrive split across deltas of one fragment.
		if strings.Contains(strings.ToLower(d.Full), StopPhrase) {
			if !c.stopHeard {
				c.stopHeard = true
				c.logger.Info("stop command heard", "speaker", d.Speaker)
			}
			ev.StopRequested(session.ReasonStopCommand)
			continue
		}
		if !c.builder.Append(d.Segment) {
			return
		}
		ev.Activity(1, 0, 0)
		c.logger.Debug("caption", "speaker", d.Speaker, "text", d.Text)
	}
}

// Finalize stops the loop, flushes pending text and freezes the transcript.
func (c *Capturer) Finalize(ctx context.Context) (transcript.Transcript, error) {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started {
		select {
		case <-c.done:
		case <-ctx.Done():
			return c.builder.Freeze(), ctx.Err()
		}
	}
	tr := c.builder.Freeze()
	c.logger.Info("caption capture finished", "segments", len(tr.Segments))
	return tr, nil
}
