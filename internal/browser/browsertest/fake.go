// Package browsertest provides an in-memory browser.Surface for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Fake is a scriptable Surface. Selectors listed in Visible resolve
// immediately; anything else blocks until ctx is done, like a real wait.
type Fake struct {
	mu sync.Mutex

	Visible     map[string]bool
	Navigations []string
	Clicks      []string
	Keys        map[string]string
	InitScripts []string
	Evals       []string

	// EvalFunc answers Evaluate calls. Results are round-tripped through
	// JSON into the caller's out value.
	EvalFunc func(expr string) (any, error)

	bindings map[string]func(string)
	console  []func(string)

	closed    chan struct{}
	closeOnce sync.Once
}

func New() *Fake {
	return &Fake{
		Visible:  make(map[string]bool),
		Keys:     make(map[string]string),
		bindings: make(map[string]func(string)),
		closed:   make(chan struct{}),
	}
}

// Show marks selectors as present and visible.
func (f *Fake) Show(sels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sels {
		f.Visible[s] = true
	}
}

func (f *Fake) visible(sel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Visible[sel]
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.Navigations = append(f.Navigations, url)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) WaitVisible(ctx context.Context, sel string) error {
	if f.visible(sel) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return errors.New("target closed")
	}
}

func (f *Fake) Exists(ctx context.Context, sel string) (bool, error) {
	return f.visible(sel), ctx.Err()
}

func (f *Fake) Click(ctx context.Context, sel string) error {
	if !f.visible(sel) {
		return errors.New("no node for " + sel)
	}
	f.mu.Lock()
	f.Clicks = append(f.Clicks, sel)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) SendKeys(ctx context.Context, sel, text string) error {
	if !f.visible(sel) {
		return errors.New("no node for " + sel)
	}
	f.mu.Lock()
	f.Keys[sel] = text
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) Evaluate(ctx context.Context, expr string, out any) error {
	f.mu.Lock()
	f.Evals = append(f.Evals, expr)
	fn := f.EvalFunc
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return errors.New("no evaluator")
	}
	v, err := fn(expr)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *Fake) Bind(ctx context.Context, name string, fn func(string)) error {
	f.mu.Lock()
	f.bindings[name] = fn
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) AddInitScript(ctx context.Context, src string) error {
	f.mu.Lock()
	f.InitScripts = append(f.InitScripts, src)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) OnConsole(fn func(string)) {
	f.mu.Lock()
	f.console = append(f.console, fn)
	f.mu.Unlock()
}

func (f *Fake) Closed() <-chan struct{} {
	return f.closed
}

func (f *Fake) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// Call invokes a binding the way page code would. It reports whether the
// binding was registered.
func (f *Fake) Call(name, payload string) bool {
	f.mu.Lock()
	fn := f.bindings[name]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(payload)
	return true
}

// Log emits a console message to registered listeners.
func (f *Fake) Log(text string) {
	f.mu.Lock()
	listeners := append([]func(string){}, f.console...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(text)
	}
}

// ClickCount returns how many times sel was clicked.
func (f *Fake) ClickCount(sel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Clicks {
		if c == sel {
			n++
		}
	}
	return n
}

// EvalAt returns the i-th evaluated expression.
func (f *Fake) EvalAt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.Evals) {
		return ""
	}
	return f.Evals[i]
}

// EvalCount returns how many expressions have been evaluated.
func (f *Fake) EvalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Evals)
}
