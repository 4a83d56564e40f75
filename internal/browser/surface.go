// Package browser is the automation surface the capture session drives: a
// single page that can be navigated, queried, clicked and filled, with
// page-to-host bindings and lifecycle notifications.
package browser

import "context"

// Surface is what the session needs from a browser tab. Selectors are
// matched by search, so CSS, XPath and plain text queries all work.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, text string) error

	// Evaluate runs expr in the page and decodes its result into out.
	// Expressions must produce a value; out must be a pointer.
	Evaluate(ctx context.Context, expr string, out any) error

	// Bind exposes a page-global function name; every call from the page
	// delivers its string argument to fn on the host. fn must not block.
	Bind(ctx context.Context, name string, fn func(payload string)) error

	// AddInitScript runs src in every document before page scripts.
	AddInitScript(ctx context.Context, src string) error

	// OnConsole registers a listener for page console messages.
	OnConsole(fn func(text string))

	// Closed is closed once the tab or browser goes away.
	Closed() <-chan struct{}

	Close() error
}
