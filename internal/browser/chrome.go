package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

type Options struct {
	ProfileDir string
	Headless   bool
}

// Chrome is a Surface backed by a local Chrome driven over the DevTools
// protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger

	mu       sync.RWMutex
	bindings map[string]func(string)
	console  []func(string)

	closed    chan struct{}
	closeOnce sync.Once
}

// NewChrome launches a browser with a single tab. ctx bounds the lifetime
// of the browser process.
func NewChrome(ctx context.Context, opts Options, logger *slog.Logger) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "ExternalProtocolDialog"),
		chromedp.WindowSize(1366, 900),
	)
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	c := &Chrome{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger,
		bindings:    make(map[string]func(string)),
		closed:      make(chan struct{}),
	}

	chromedp.ListenTarget(tabCtx, c.onEvent)

	if err := chromedp.Run(tabCtx, runtime.Enable(), page.Enable(), inspector.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	go func() {
		<-tabCtx.Done()
		c.markClosed()
	}()

	return c, nil
}

func (c *Chrome) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		c.mu.RLock()
		fn := c.bindings[ev.Name]
		c.mu.RUnlock()
		if fn != nil {
			fn(ev.Payload)
		}
	case *runtime.EventConsoleAPICalled:
		c.mu.RLock()
		listeners := c.console
		c.mu.RUnlock()
		if len(listeners) == 0 {
			return
		}
		text := consoleText(ev.Args)
		for _, fn := range listeners {
			fn(text)
		}
	case *inspector.EventDetached:
		c.logger.Info("browser target detached", "reason", ev.Reason)
		c.markClosed()
	case *inspector.EventTargetCrashed:
		c.logger.Warn("browser target crashed")
		c.markClosed()
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case len(arg.Value) > 0:
			raw := string(arg.Value)
			if s, err := strconv.Unquote(raw); err == nil {
				raw = s
			}
			parts = append(parts, raw)
		case arg.Description != "":
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func (c *Chrome) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// run executes actions on the tab, aborting when ctx is done. Cancelling
// ctx never closes the tab itself.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) WaitVisible(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitVisible(sel, chromedp.BySearch))
}

func (c *Chrome) Exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (c *Chrome) Click(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible))
}

func (c *Chrome) SendKeys(ctx context.Context, sel, text string) error {
	return c.run(ctx,
		chromedp.Clear(sel, chromedp.BySearch),
		chromedp.SendKeys(sel, text, chromedp.BySearch),
	)
}

func (c *Chrome) Evaluate(ctx context.Context, expr string, out any) error {
	return c.run(ctx, chromedp.Evaluate(expr, out))
}

func (c *Chrome) Bind(ctx context.Context, name string, fn func(string)) error {
	c.mu.Lock()
	c.bindings[name] = fn
	c.mu.Unlock()

	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(name).Do(ctx)
	}))
}

func (c *Chrome) AddInitScript(ctx context.Context, src string) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
		return err
	}))
}

func (c *Chrome) OnConsole(fn func(string)) {
	c.mu.Lock()
	c.console = append(c.console, fn)
	c.mu.Unlock()
}

func (c *Chrome) Closed() <-chan struct{} {
	return c.closed
}

// Close shuts the tab and the browser process.
func (c *Chrome) Close() error {
	c.cancel()
	c.allocCancel()
	c.markClosed()
	return nil
}
