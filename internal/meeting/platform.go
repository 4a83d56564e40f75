// Package meeting knows how to get a bot into a call on each supported
// conferencing platform: authentication, join, caption toggling and the
// text the page shows once the call is over.
package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
)

// CaptionLayout describes where live captions render on a platform.
type CaptionLayout struct {
	// Regions are tried in order; the first match is observed.
	Regions []string
	// Fragment narrows a mutated node to the element holding one utterance.
	// Empty means the mutated element itself.
	Fragment string
	// Speaker selectors locate the label near a fragment.
	Speaker []string
	// Polling selects the interval-based stability check over debounce.
	Polling bool
}

// Platform drives one conferencing product.
type Platform interface {
	Name() string
	// NormalizeURL rewrites a user-supplied meeting link if needed.
	NormalizeURL(raw string) string
	// Authenticate waits until the surface holds a signed-in identity.
	// It may block indefinitely on a manual step.
	Authenticate(ctx context.Context, s browser.Surface) error
	// Join opens the meeting and enters the call, returning its title.
	Join(ctx context.Context, s browser.Surface, url string) (string, error)
	EnableCaptions(ctx context.Context, s browser.Surface) error
	Captions() CaptionLayout
	EndMarkers() []string
}

// Timeouts bound the setup waits. Zero values use defaults.
type Timeouts struct {
	Title      time.Duration
	JoinButton time.Duration
	InCall     time.Duration
	Control    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Title == 0 {
		t.Title = 10 * time.Second
	}
	if t.JoinButton == 0 {
		t.JoinButton = 60 * time.Second
	}
	if t.InCall == 0 {
		t.InCall = 2 * time.Minute
	}
	if t.Control == 0 {
		t.Control = 5 * time.Second
	}
	return t
}

// ForName returns the platform registered under name.
func ForName(name, botName string, t Timeouts, logger *slog.Logger) (Platform, error) {
	switch strings.ToLower(name) {
	case "meet", "gmeet", "google":
		return &Meet{timeouts: t.withDefaults(), logger: logger}, nil
	case "teams", "msteams":
		return &Teams{botName: botName, timeouts: t.withDefaults(), logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown platform %q", name)
	}
}

// EndMarkerScript evaluates to true when any marker appears in the body text.
func EndMarkerScript(markers []string) string {
	list, _ := json.Marshal(markers)
	return fmt.Sprintf(`(() => { const body = (document.body && document.body.innerText) || ""; return %s.some(m => body.includes(m)); })()`, list)
}

// EndMarkerPresent reports whether the page shows an end-of-call marker.
func EndMarkerPresent(ctx context.Context, s browser.Surface, p Platform) (bool, error) {
	var ended bool
	if err := s.Evaluate(ctx, EndMarkerScript(p.EndMarkers()), &ended); err != nil {
		return false, err
	}
	return ended, nil
}

// clickIfPresent clicks sel when it exists. Missing controls are not an error.
func clickIfPresent(ctx context.Context, s browser.Surface, sel string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := s.Exists(ctx, sel)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Click(ctx, sel); err != nil {
		return false, err
	}
	return true, nil
}

// toggleOff clicks a best-effort control and logs when it is absent or the
// click fails. The session continues either way.
func toggleOff(ctx context.Context, s browser.Surface, sel, control string, timeout time.Duration, logger *slog.Logger) {
	clicked, err := clickIfPresent(ctx, s, sel, timeout)
	switch {
	case err != nil:
		logger.Warn("could not toggle control, continuing", "control", control, "error", err)
	case !clicked:
		logger.Warn("control not found, continuing", "control", control)
	default:
		logger.Debug("control toggled", "control", control)
	}
}

func waitFor(ctx context.Context, s browser.Surface, sel string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.WaitVisible(ctx, sel)
}
