package meeting

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/browser/browsertest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastTimeouts() Timeouts {
	return Timeouts{
		Title:      50 * time.Millisecond,
		JoinButton: 50 * time.Millisecond,
		InCall:     50 * time.Millisecond,
		Control:    50 * time.Millisecond,
	}
}

func TestForName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"meet", "meet", false},
		{"Teams", "teams", false},
		{"zoom", "", true},
	}
	for _, tc := range tests {
		p, err := ForName(tc.name, "Clerk", Timeouts{}, discardLogger())
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if p.Name() != tc.want {
			t.Errorf("%s: got %s", tc.name, p.Name())
		}
	}
}

func TestTeams_NormalizeURL(t *testing.T) {
	tm := &Teams{}
	tests := []struct{ in, want string }{
		{"https://teams.microsoft.com/l/meetup-join/abc", "https://teams.microsoft.com/l/meetup-join/abc?webjoin=true"},
		{"https://teams.microsoft.com/l/meetup-join/abc?context=x", "https://teams.microsoft.com/l/meetup-join/abc?context=x&webjoin=true"},
		{"https://teams.microsoft.com/x?webjoin=true", "https://teams.microsoft.com/x?webjoin=true"},
	}
	for _, tc := range tests {
		if got := tm.NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMeet_Join(t *testing.T) {
	f := browsertest.New()
	f.Show(meetJoinReady, meetJoinButton, meetMicButton, meetCaptionButton)
	f.EvalFunc = func(expr string) (any, error) {
		if expr == meetTitleScript {
			return "Weekly sync", nil
		}
		return nil, errors.New("unexpected eval")
	}

	m := &Meet{timeouts: fastTimeouts(), logger: discardLogger()}
	title, err := m.Join(context.Background(), f, "https://meet.google.com/abc-defg-hij")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Weekly sync" {
		t.Errorf("expected title from page, got %q", title)
	}
	if f.ClickCount(meetMicButton) != 1 {
		t.Error("expected microphone toggled off")
	}
	if f.ClickCount(meetCameraButton) != 0 {
		t.Error("camera control absent, should not be clicked")
	}
	if f.ClickCount(meetJoinButton) != 1 {
		t.Error("expected join click")
	}
}

func TestMeet_JoinWithoutDeviceControls(t *testing.T) {
	f := browsertest.New()
	f.Show(meetJoinReady, meetJoinButton, meetCaptionButton)
	f.EvalFunc = func(string) (any, error) { return "Weekly sync", nil }

	var logs bytes.Buffer
	m := &Meet{timeouts: fastTimeouts(), logger: slog.New(slog.NewTextHandler(&logs, nil))}
	if _, err := m.Join(context.Background(), f, "https://meet.google.com/abc-defg-hij"); err != nil {
		t.Fatalf("missing device controls must not fail the join: %v", err)
	}
	if f.ClickCount(meetJoinButton) != 1 {
		t.Error("expected join click")
	}
	out := logs.String()
	for _, control := range []string{"control=microphone", "control=camera"} {
		if !strings.Contains(out, "level=WARN") || !strings.Contains(out, control) {
			t.Errorf("expected warning for %s, got:\n%s", control, out)
		}
	}
}

func TestTeams_JoinWithoutNoAudioOption(t *testing.T) {
	f := browsertest.New()
	f.Show(teamsNameInput, teamsJoinButton, teamsCallScreen)
	f.EvalFunc = func(string) (any, error) { return false, nil }

	var logs bytes.Buffer
	tm := &Teams{botName: "Clerk", timeouts: fastTimeouts(), logger: slog.New(slog.NewTextHandler(&logs, nil))}
	if _, err := tm.Join(context.Background(), f, "https://teams.microsoft.com/x?webjoin=true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "no-audio option not found") {
		t.Errorf("expected warning for missing no-audio option, got:\n%s", out)
	}
}

func TestMeet_JoinButtonNeverAppears(t *testing.T) {
	f := browsertest.New()
	f.EvalFunc = func(string) (any, error) { return "", nil }

	m := &Meet{timeouts: fastTimeouts(), logger: discardLogger()}
	title, err := m.Join(context.Background(), f, "https://meet.google.com/x")
	if err == nil {
		t.Fatal("expected setup failure")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if title != defaultMeetTitle {
		t.Errorf("expected default title, got %q", title)
	}
}

func TestMeet_EnableCaptionsMissing(t *testing.T) {
	f := browsertest.New()
	f.EvalFunc = func(string) (any, error) { return "missing", nil }

	m := &Meet{timeouts: fastTimeouts(), logger: discardLogger()}
	if err := m.EnableCaptions(context.Background(), f); !errors.Is(err, errCaptionControlMissing) {
		t.Errorf("expected missing control error, got %v", err)
	}
}

func TestTeams_Join(t *testing.T) {
	f := browsertest.New()
	f.Show(teamsNameInput, teamsJoinButton, teamsCallScreen)
	f.EvalFunc = func(string) (any, error) { return true, nil }

	tm := &Teams{botName: "Transcript Bot", timeouts: fastTimeouts(), logger: discardLogger()}
	if _, err := tm.Join(context.Background(), f, "https://teams.microsoft.com/x?webjoin=true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Keys[teamsNameInput] != "Transcript Bot" {
		t.Errorf("expected bot name filled, got %q", f.Keys[teamsNameInput])
	}
	if f.ClickCount(teamsJoinButton) != 1 {
		t.Error("expected join click")
	}
}

func TestTeams_EnableCaptions(t *testing.T) {
	f := browsertest.New()
	f.Show(teamsMoreButton, teamsCaptionsItem)

	tm := &Teams{timeouts: fastTimeouts(), logger: discardLogger()}
	if err := tm.EnableCaptions(context.Background(), f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ClickCount(teamsCaptionsItem) != 1 {
		t.Error("expected captions menu item clicked")
	}
}

func TestTeams_EnableCaptionsNoMenu(t *testing.T) {
	f := browsertest.New()
	tm := &Teams{timeouts: fastTimeouts(), logger: discardLogger()}
	if err := tm.EnableCaptions(context.Background(), f); !errors.Is(err, errCaptionControlMissing) {
		t.Errorf("expected missing control error, got %v", err)
	}
}

func TestEndMarkerPresent(t *testing.T) {
	f := browsertest.New()
	var script string
	f.EvalFunc = func(expr string) (any, error) {
		script = expr
		return true, nil
	}

	m := &Meet{}
	ended, err := EndMarkerPresent(context.Background(), f, m)
	if err != nil {
		t.Fatal(err)
	}
	if !ended {
		t.Error("expected ended")
	}
	if !strings.Contains(script, `"You've left the meeting"`) || !strings.Contains(script, `"Return to home screen"`) {
		t.Errorf("script missing markers: %s", script)
	}
}
