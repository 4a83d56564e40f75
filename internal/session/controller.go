package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
	"github.com/MikeSquared-Agency/clerk/internal/meeting"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// Reasons capture can end.
const (
	ReasonEndMarker   = "end_marker"
	ReasonSilence     = "silence_timeout"
	ReasonPageClosed  = "page_closed"
	ReasonSignal      = "terminated"
	ReasonStopCommand = "stop_command"
	ReasonStopRequest = "stop_request"
)

// ErrAlreadyFinalizing is returned by Stop once capture is already ending.
var ErrAlreadyFinalizing = errors.New("session already finalizing")

// Events is how a capture strategy reports back to the session.
type Events interface {
	// Activity records captured content; any call resets the silence clock.
	Activity(segments, chunks, bytes int)
	// StopRequested asks the session to end capture.
	StopRequested(reason string)
}

// Capturer produces the transcript for one session.
type Capturer interface {
	Kind() transcript.Kind
	// Prepare runs before the meeting page loads.
	Prepare(ctx context.Context) error
	// Start arms capture once the bot is in the call.
	Start(ctx context.Context, ev Events) error
	// Finalize stops capture and hands over the frozen transcript. It is
	// called exactly once. A non-nil error may accompany a partial or empty
	// transcript.
	Finalize(ctx context.Context) (transcript.Transcript, error)
}

// Finalizer turns the transcript into delivered artifacts.
type Finalizer interface {
	Finalize(ctx context.Context, snap Snapshot, tr transcript.Transcript) error
}

// Listener observes state transitions.
type Listener interface {
	Transition(snap Snapshot, from State)
}

// Status is the final outcome reported to the originating application.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Reporter delivers the final outcome. Delivery is best effort.
type Reporter interface {
	Report(ctx context.Context, snap Snapshot, status Status) error
}

type Config struct {
	SilenceTimeout    time.Duration
	StatusInterval    time.Duration
	EndMarkerInterval time.Duration
	ReportTimeout     time.Duration
}

// Controller drives a Session from INIT to DONE or FAILED.
type Controller struct {
	sess      *Session
	surface   browser.Surface
	platform  meeting.Platform
	capturer  Capturer
	finalizer Finalizer
	listeners []Listener
	reporters []Reporter
	cfg       Config
	logger    *slog.Logger

	latch   atomic.Bool
	trigger chan string

	setupMu     sync.Mutex
	cancelSetup context.CancelFunc
}

func NewController(sess *Session, surface browser.Surface, platform meeting.Platform, capturer Capturer, finalizer Finalizer, cfg Config, logger *slog.Logger) *Controller {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 10 * time.Minute
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 20 * time.Second
	}
	if cfg.EndMarkerInterval <= 0 {
		cfg.EndMarkerInterval = 5 * time.Second
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 10 * time.Second
	}
	return &Controller{
		sess:      sess,
		surface:   surface,
		platform:  platform,
		capturer:  capturer,
		finalizer: finalizer,
		cfg:       cfg,
		logger:    logger.With("session_id", sess.ID.String()),
		trigger:   make(chan string, 1),
	}
}

// AddListener registers a transition observer. Call before Run.
func (c *Controller) AddListener(l Listener) { c.listeners = append(c.listeners, l) }

// AddReporter registers an outcome reporter. Call before Run.
func (c *Controller) AddReporter(r Reporter) { c.reporters = append(c.reporters, r) }

func (c *Controller) Session() *Session { return c.sess }

// Trigger requests the move to FINALIZING. Only the first call across all
// sources wins; it returns false for every later one.
func (c *Controller) Trigger(reason string) bool {
	if !c.latch.CompareAndSwap(false, true) {
		return false
	}
	c.sess.setReason(reason)
	c.trigger <- reason

	c.setupMu.Lock()
	if c.cancelSetup != nil {
		c.cancelSetup()
	}
	c.setupMu.Unlock()
	return true
}

// Stop ends capture on behalf of an external caller.
func (c *Controller) Stop() error {
	if !c.Trigger(ReasonStopRequest) {
		return ErrAlreadyFinalizing
	}
	return nil
}

func (c *Controller) Activity(segments, chunks, bytes int) {
	c.sess.RecordActivity(segments, chunks, bytes)
}

func (c *Controller) StopRequested(reason string) {
	if c.Trigger(reason) {
		c.logger.Info("stop requested from capture", "reason", reason)
	}
}

// Run performs the whole attendance. Cancelling ctx ends capture the same
// way an end-of-meeting marker does; finalization still runs to completion.
func (c *Controller) Run(ctx context.Context) error {
	defer c.surface.Close()

	c.logger.Info("session starting",
		"platform", c.platform.Name(),
		"strategy", c.capturer.Kind(),
		"meeting_id", c.sess.MeetingID,
	)
	c.notify(StateInit)

	// A stop during setup cancels the step in progress and skips the rest.
	setupCtx, cancel := context.WithCancel(ctx)
	c.setupMu.Lock()
	c.cancelSetup = cancel
	c.setupMu.Unlock()
	defer c.endSetup()

	if err := c.capturer.Prepare(setupCtx); err != nil || c.latch.Load() {
		return c.setupFailed(ctx, "prepare capture", err)
	}

	if err := c.platform.Authenticate(setupCtx, c.surface); err != nil || c.latch.Load() {
		return c.setupFailed(ctx, "authenticate", err)
	}
	c.transition(StateAuthenticated)

	title, err := c.platform.Join(setupCtx, c.surface, c.sess.URL)
	c.sess.setTitle(title)
	if err != nil || c.latch.Load() {
		return c.setupFailed(ctx, "join", err)
	}
	c.transition(StateJoined)

	if c.capturer.Kind() == transcript.KindCaptions {
		if err := c.platform.EnableCaptions(setupCtx, c.surface); err != nil {
			c.logger.Warn("could not enable captions", "error", err)
		}
	}
	if c.latch.Load() {
		return c.setupFailed(ctx, "enable captions", nil)
	}
	c.endSetup()

	if err := c.capturer.Start(ctx, c); err != nil {
		return c.fail(ctx, fmt.Errorf("start capture: %w", err))
	}
	c.sess.RecordActivity(0, 0, 0)
	c.transition(StateCapturing)

	reason := c.watch(ctx)
	return c.finalize(ctx, reason)
}

// watch runs the end-of-session detectors until one of them, or an external
// caller, wins the latch. Every watcher has exited when it returns.
func (c *Controller) watch(ctx context.Context) string {
	watchCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(watchCtx)

	g.Go(func() error { c.watchEndMarker(gctx); return nil })
	g.Go(func() error { c.watchSilence(gctx); return nil })
	g.Go(func() error { c.reportStatus(gctx); return nil })
	g.Go(func() error {
		select {
		case <-c.surface.Closed():
			c.Trigger(ReasonPageClosed)
		case <-gctx.Done():
		}
		return nil
	})

	var reason string
	select {
	case reason = <-c.trigger:
	case <-ctx.Done():
		c.Trigger(ReasonSignal)
		reason = <-c.trigger
	}

	cancel()
	_ = g.Wait()
	return reason
}

func (c *Controller) watchEndMarker(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.EndMarkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, c.cfg.EndMarkerInterval)
			ended, err := meeting.EndMarkerPresent(checkCtx, c.surface, c.platform)
			cancel()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Warn("end marker check timed out", "error", err)
				continue
			}
			if err != nil {
				c.logger.Warn("end marker check failed, treating page as gone", "error", err)
				c.Trigger(ReasonPageClosed)
				return
			}
			if ended {
				c.Trigger(ReasonEndMarker)
				return
			}
		}
	}
}

func (c *Controller) watchSilence(ctx context.Context) {
	interval := c.cfg.SilenceTimeout / 10
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if idle := c.sess.Idle(now); idle >= c.cfg.SilenceTimeout {
				c.logger.Info("silence timeout", "idle", idle.Round(time.Second))
				c.Trigger(ReasonSilence)
				return
			}
		}
	}
}

func (c *Controller) reportStatus(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.logger.Info("status",
				"elapsed", c.sess.Elapsed().Round(time.Second),
				"segments", c.sess.Segments(),
				"chunks", c.sess.Chunks(),
				"bytes", c.sess.Bytes(),
				"idle", c.sess.Idle(now).Round(time.Second),
			)
		}
	}
}

func (c *Controller) finalize(ctx context.Context, reason string) error {
	c.logger.Info("capture ending", "reason", reason)
	c.transition(StateFinalizing)

	// Finalization must outlive the signal that may have triggered it.
	fctx := context.WithoutCancel(ctx)

	tr, capErr := c.capturer.Finalize(fctx)
	if capErr != nil {
		c.logger.Error("capture finalize failed", "error", capErr)
	}

	err := c.finalizer.Finalize(fctx, c.sess.Snapshot(), tr)
	if err != nil {
		c.logger.Error("finalization failed", "error", err)
	}

	c.transition(StateDone)

	status := StatusDone
	if err != nil {
		status = StatusFailed
	}
	c.report(fctx, status)
	return err
}

func (c *Controller) endSetup() {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()
	if c.cancelSetup != nil {
		c.cancelSetup()
		c.cancelSetup = nil
	}
}

// setupFailed ends a session that never reached CAPTURING. When a stop won
// the latch during setup the session is abandoned, otherwise it fails.
func (c *Controller) setupFailed(ctx context.Context, step string, err error) error {
	if !c.latch.Load() {
		return c.fail(ctx, fmt.Errorf("%s: %w", step, err))
	}
	reason := <-c.trigger
	c.logger.Info("stopped before capture, leaving without recording", "reason", reason, "step", step, "error", err)
	c.transition(StateDone)
	c.report(context.WithoutCancel(ctx), StatusFailed)
	return nil
}

func (c *Controller) fail(ctx context.Context, err error) error {
	c.logger.Error("session failed", "state", c.sess.State(), "error", err)
	// Claim the latch so late triggers are ignored.
	c.latch.Store(true)
	c.transition(StateFailed)
	c.report(context.WithoutCancel(ctx), StatusFailed)
	return err
}

func (c *Controller) transition(to State) {
	from := c.sess.State()
	c.sess.setState(to)
	c.logger.Info("session state", "from", from, "to", to)
	c.notify(from)
}

func (c *Controller) notify(from State) {
	snap := c.sess.Snapshot()
	for _, l := range c.listeners {
		l.Transition(snap, from)
	}
}

func (c *Controller) report(ctx context.Context, status Status) {
	snap := c.sess.Snapshot()
	for _, r := range c.reporters {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.ReportTimeout)
		if err := r.Report(rctx, snap, status); err != nil {
			c.logger.Warn("status report failed", "status", status, "error", err)
		}
		cancel()
	}
}
