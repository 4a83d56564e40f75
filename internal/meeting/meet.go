package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
)

const (
	googleAccountsURL = "https://accounts.google.com"

	meetSignedIn      = `img[alt*="Google Account"], a[href*="SignOutOptions"]`
	meetJoinReady     = `//button[.//span[contains(., "Join now") or contains(., "Ask to join")]]`
	meetJoinButton    = `//button[.//span[contains(., "Join now") or contains(., "Ask to join") or contains(., "Switch here")]]`
	meetMicButton     = `button[aria-label*="microphone" i]`
	meetCameraButton  = `button[aria-label*="camera" i]`
	meetCaptionButton = `button[aria-label*="captions" i]`

	meetTitleScript = `(() => {
  const el = document.querySelector("div[data-meeting-title]");
  if (el) return el.getAttribute("data-meeting-title") || "";
  const h1 = document.querySelector("h1");
  return h1 ? h1.innerText : "";
})()`

	meetCaptionToggleScript = `(() => {
  const b = document.querySelector('button[aria-label*="captions" i]');
  if (!b) return "missing";
  if (b.getAttribute("aria-pressed") === "true") return "on";
  b.click();
  return "clicked";
})()`
)

const defaultMeetTitle = "Google Meet"

// Meet joins Google Meet calls with a signed-in Google profile.
type Meet struct {
	timeouts Timeouts
	logger   *slog.Logger
}

func (m *Meet) Name() string { return "meet" }

func (m *Meet) NormalizeURL(raw string) string { return raw }

// Authenticate opens the Google sign-in page and waits, without limit, for
// an account avatar or sign-out link. With a persistent profile this
// returns as soon as the page loads.
func (m *Meet) Authenticate(ctx context.Context, s browser.Surface) error {
	if err := s.Navigate(ctx, googleAccountsURL); err != nil {
		return fmt.Errorf("open sign-in: %w", err)
	}
	if err := s.WaitVisible(ctx, meetSignedIn); err != nil {
		return fmt.Errorf("wait for sign-in: %w", err)
	}
	return nil
}

func (m *Meet) Join(ctx context.Context, s browser.Surface, url string) (string, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("open meeting: %w", err)
	}

	title := m.title(ctx, s)

	if err := waitFor(ctx, s, meetJoinReady, m.timeouts.JoinButton); err != nil {
		return title, fmt.Errorf("join button: %w", err)
	}

	// Both toggles are best effort; the pre-join screen omits them when no
	// device is present.
	toggleOff(ctx, s, meetMicButton, "microphone", m.timeouts.Control, m.logger)
	toggleOff(ctx, s, meetCameraButton, "camera", m.timeouts.Control, m.logger)

	if err := s.Click(ctx, meetJoinButton); err != nil {
		return title, fmt.Errorf("click join: %w", err)
	}
	if err := waitFor(ctx, s, meetCaptionButton, m.timeouts.InCall); err != nil {
		return title, fmt.Errorf("wait for call: %w", err)
	}
	return title, nil
}

func (m *Meet) title(ctx context.Context, s browser.Surface) string {
	ctx, cancel := context.WithTimeout(ctx, m.timeouts.Title)
	defer cancel()

	var title string
	if err := s.Evaluate(ctx, meetTitleScript, &title); err != nil || title == "" {
		return defaultMeetTitle
	}
	return title
}

var errCaptionControlMissing = errors.New("caption control not found")

func (m *Meet) EnableCaptions(ctx context.Context, s browser.Surface) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeouts.Control)
	defer cancel()

	var state string
	if err := s.Evaluate(ctx, meetCaptionToggleScript, &state); err != nil {
		return fmt.Errorf("toggle captions: %w", err)
	}
	if state == "missing" {
		return errCaptionControlMissing
	}
	return nil
}

func (m *Meet) Captions() CaptionLayout {
	return CaptionLayout{
		Regions: []string{
			`[role="region"][aria-label*="Captions"]`,
			`[jsname="dsyhDe"]`,
			`.a4cQT`,
		},
		Speaker: []string{`.NWpY1d`, `[jsname="tAPELd"]`, `[class*="speaker"]`},
	}
}

func (m *Meet) EndMarkers() []string {
	return []string{
		"You've left the meeting",
		"You left the meeting",
		"The meeting has ended",
		"You were removed",
		"Return to home screen",
	}
}
