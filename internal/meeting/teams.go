package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/clerk/internal/browser"
)

const (
	teamsNameInput    = `input[type="text"]`
	teamsJoinButton   = `//button[contains(., "Join now")]`
	teamsCallScreen   = `[data-cid="call-screen-wrapper"]`
	teamsMoreButton   = `#callingButtons-showMoreBtn`
	teamsCaptionsItem = `//*[@role="menuitem"][contains(., "Captions")]`

	teamsNoAudioScript = `(() => {
  for (const r of document.querySelectorAll('[role="radio"], input[type="radio"]')) {
    const label = (r.getAttribute("aria-label") || (r.labels && r.labels[0] && r.labels[0].innerText) || r.innerText || "");
    if (/don't use audio/i.test(label)) { r.click(); return true; }
  }
  return false;
})()`
)

// Teams joins Microsoft Teams calls anonymously through the web client.
type Teams struct {
	botName  string
	timeouts Timeouts
	logger   *slog.Logger
}

func (t *Teams) Name() string { return "teams" }

// NormalizeURL forces the browser join flow instead of the desktop app
// hand-off.
func (t *Teams) NormalizeURL(raw string) string {
	if strings.Contains(raw, "webjoin=true") {
		return raw
	}
	if strings.Contains(raw, "?") {
		return raw + "&webjoin=true"
	}
	return raw + "?webjoin=true"
}

// Authenticate is a no-op: guests join without signing in.
func (t *Teams) Authenticate(ctx context.Context, s browser.Surface) error {
	return ctx.Err()
}

func (t *Teams) Join(ctx context.Context, s browser.Surface, url string) (string, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("open meeting: %w", err)
	}
	if err := waitFor(ctx, s, teamsNameInput, t.timeouts.JoinButton); err != nil {
		return "", fmt.Errorf("name input: %w", err)
	}
	if err := s.SendKeys(ctx, teamsNameInput, t.botName); err != nil {
		return "", fmt.Errorf("fill name: %w", err)
	}

	var picked bool
	if err := s.Evaluate(ctx, teamsNoAudioScript, &picked); err != nil {
		t.logger.Warn("could not select the no-audio option, continuing", "error", err)
	} else if !picked {
		t.logger.Warn("no-audio option not found, continuing")
	}

	if err := s.Click(ctx, teamsJoinButton); err != nil {
		return "", fmt.Errorf("click join: %w", err)
	}
	if err := waitFor(ctx, s, teamsCallScreen, t.timeouts.InCall); err != nil {
		return "", fmt.Errorf("wait for call: %w", err)
	}
	return "Microsoft Teams", nil
}

func (t *Teams) EnableCaptions(ctx context.Context, s browser.Surface) error {
	if ok, err := clickIfPresent(ctx, s, teamsMoreButton, t.timeouts.Control); err != nil || !ok {
		return fmt.Errorf("open more menu: %w", orMissing(err))
	}
	if err := waitFor(ctx, s, teamsCaptionsItem, t.timeouts.Control); err != nil {
		return fmt.Errorf("captions menu item: %w", err)
	}
	if err := s.Click(ctx, teamsCaptionsItem); err != nil {
		return fmt.Errorf("click captions: %w", err)
	}
	return nil
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errCaptionControlMissing
}

func (t *Teams) Captions() CaptionLayout {
	return CaptionLayout{
		Regions:  []string{"body"},
		Fragment: `span[data-tid="closed-caption-text"]`,
		Speaker:  []string{`span[data-tid="author"]`},
		Polling:  true,
	}
}

func (t *Teams) EndMarkers() []string {
	return []string{"Enjoy your call? Join Teams today for free"}
}
