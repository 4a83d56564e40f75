package finalize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/anthropic"
	"github.com/MikeSquared-Agency/clerk/internal/archive"
	"github.com/MikeSquared-Agency/clerk/internal/imagesource"
	"github.com/MikeSquared-Agency/clerk/internal/mailer"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/summarizer"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSnap = session.Snapshot{
	ID:         "9f6ed519-0000-0000-0000-000000000001",
	MeetingID:  "m-42",
	Platform:   "meet",
	Title:      "Weekly sync",
	StartedAt:  time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	ElapsedSec: 1800,
}

var captionTranscript = transcript.Transcript{
	Kind: transcript.KindCaptions,
	Segments: []transcript.Segment{
		{Speaker: "Ana", Text: "Let's ship Friday"},
		{Speaker: "Ben", Text: "Agreed"},
	},
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, title string, date time.Time, text string) (string, error) {
	f.calls++
	return f.summary, f.err
}

type fakeImages struct {
	img image.Image
	err error
}

func (f *fakeImages) Fetch(ctx context.Context) (image.Image, error) {
	return f.img, f.err
}

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeStore struct {
	saved int
	err   error
}

func (f *fakeStore) SaveTranscript(ctx context.Context, snap session.Snapshot, tr transcript.Transcript) error {
	f.saved++
	return f.err
}

type stepLog map[string]string

func (s stepLog) ObserveStep(step, outcome string) { s[step] = outcome }

func canvas(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func names(msg mailer.Message) []string {
	var out []string
	for _, a := range msg.Attachments {
		out = append(out, a.Filename)
	}
	return out
}

func savedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestFinalize_FullDelivery(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{}
	steps := stepLog{}
	p := New(archive.New(dir), &fakeSummarizer{summary: "Decisions: ship Friday"}, &fakeImages{img: canvas(200, 100)}, sender,
		Options{To: "team@example.com", Stego: true}, discardLogger()).WithObserver(steps)

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Subject != "Meeting Summary - Weekly sync" || msg.To != "team@example.com" {
		t.Errorf("unexpected envelope: %q to %q", msg.Subject, msg.To)
	}
	if got := strings.Join(names(msg), ","); got != "transcript.txt,summary.txt,meeting_summary_image.png" {
		t.Errorf("unexpected attachments %s", got)
	}
	if string(msg.Attachments[0].Content) != "Ana: Let's ship Friday\nBen: Agreed" {
		t.Errorf("unexpected transcript attachment %q", msg.Attachments[0].Content)
	}
	if _, err := png.Decode(bytes.NewReader(msg.Attachments[2].Content)); err != nil {
		t.Errorf("image attachment is not a PNG: %v", err)
	}
	for _, want := range []string{"Title: Weekly sync", "Duration: 30m0s", "Meeting ID: m-42", "Decisions: ship Friday"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if len(savedFiles(t, dir)) != 2 {
		t.Errorf("expected transcript and sidecar on disk, got %v", savedFiles(t, dir))
	}
	for _, step := range []string{StepPersist, StepSummarize, StepImage, StepEmbed, StepEmail} {
		if steps[step] != "ok" {
			t.Errorf("step %s = %q", step, steps[step])
		}
	}
}

func TestFinalize_ImageFailureDegrades(t *testing.T) {
	sender := &fakeSender{}
	steps := stepLog{}
	p := New(archive.New(t.TempDir()), &fakeSummarizer{summary: "minutes"}, &fakeImages{err: errors.New("503")}, sender,
		Options{To: "a@example.com", Stego: true}, discardLogger()).WithObserver(steps)

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected delivery, got %d emails", len(sender.sent))
	}
	if got := strings.Join(names(sender.sent[0]), ","); got != "transcript.txt,summary.txt" {
		t.Errorf("unexpected attachments %s", got)
	}
	if steps[StepImage] != "failed" {
		t.Errorf("image step = %q", steps[StepImage])
	}
	if _, ok := steps[StepEmbed]; ok {
		t.Error("embed must not run without an image")
	}
}

func TestFinalize_EmbedCapacityDegrades(t *testing.T) {
	sender := &fakeSender{}
	p := New(archive.New(t.TempDir()), &fakeSummarizer{summary: strings.Repeat("long minutes ", 50)}, &fakeImages{img: canvas(4, 4)}, sender,
		Options{To: "a@example.com", Stego: true}, discardLogger())

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(sender.sent[0].Attachments); n != 2 {
		t.Errorf("expected no image attachment, got %d attachments", n)
	}
}

func TestFinalize_SummaryFailureAborts(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{}
	images := &fakeImages{img: canvas(10, 10)}
	p := New(archive.New(dir), &fakeSummarizer{err: errors.New("overloaded")}, images, sender,
		Options{To: "a@example.com", Stego: true}, discardLogger())

	err := p.Finalize(context.Background(), testSnap, captionTranscript)
	if err == nil || !strings.Contains(err.Error(), "summarize") {
		t.Fatalf("expected summarize error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("no email expected after summary failure")
	}
	if len(savedFiles(t, dir)) == 0 {
		t.Error("transcript must be persisted before summarization")
	}
}

func TestFinalize_EmailFailureKeepsLocalCopy(t *testing.T) {
	dir := t.TempDir()
	p := New(archive.New(dir), &fakeSummarizer{summary: "m"}, nil, &fakeSender{err: errors.New("timeout")},
		Options{To: "a@example.com"}, discardLogger())

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err == nil {
		t.Fatal("expected delivery error")
	}
	if len(savedFiles(t, dir)) != 2 {
		t.Errorf("local copy missing: %v", savedFiles(t, dir))
	}
}

func TestFinalize_EmptyTranscript(t *testing.T) {
	sum := &fakeSummarizer{summary: "m"}
	st := &fakeStore{}
	p := New(archive.New(t.TempDir()), sum, nil, &fakeSender{}, Options{To: "a@example.com"}, discardLogger()).WithStore(st)

	err := p.Finalize(context.Background(), testSnap, transcript.Transcript{Kind: transcript.KindCaptions})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if sum.calls != 0 {
		t.Error("summarizer called for empty transcript")
	}
	if st.saved != 1 {
		t.Error("store should still receive the empty transcript")
	}
}

func TestFinalize_StoreFailureNotFatal(t *testing.T) {
	sender := &fakeSender{}
	p := New(archive.New(t.TempDir()), &fakeSummarizer{summary: "m"}, nil, sender, Options{To: "a@example.com"}, discardLogger()).
		WithStore(&fakeStore{err: errors.New("connection refused")})

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Error("expected delivery despite store failure")
	}
}

func TestFinalize_AudioSubject(t *testing.T) {
	sender := &fakeSender{}
	p := New(archive.New(t.TempDir()), &fakeSummarizer{summary: "m"}, nil, sender, Options{To: "a@example.com"}, discardLogger())

	tr := transcript.Transcript{
		Kind:     transcript.KindAudio,
		Duration: 95,
		Segments: []transcript.Segment{{Text: "hello", Start: 0, End: 2}},
	}
	if err := p.Finalize(context.Background(), testSnap, tr); err != nil {
		t.Fatal(err)
	}
	msg := sender.sent[0]
	if msg.Subject != "[Audio] Meeting Summary - Weekly sync" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.Attachments[0].Filename != "audio_transcript.txt" || !strings.Contains(msg.Text, "Duration: 1m35s") {
		t.Errorf("unexpected audio message: %+v", names(msg))
	}
}

func TestFinalize_NoRecipient(t *testing.T) {
	sender := &fakeSender{}
	p := New(archive.New(t.TempDir()), &fakeSummarizer{summary: "m"}, nil, sender, Options{}, discardLogger())
	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Error("no email expected without recipient")
	}
}

// End to end against HTTP test servers: the image source is down, the
// summary succeeds, and the email carries transcript and summary only.
func TestFinalize_GracefulDegradationOverHTTP(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "Minutes: ship Friday"}},
			"stop_reason": "end_turn",
		})
	}))
	defer llmServer.Close()

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer imageServer.Close()

	type sgAttachment struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	var (
		mu       sync.Mutex
		requests int
		got      []sgAttachment
	)
	mailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Attachments []sgAttachment `json:"attachments"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		requests++
		got = body.Attachments
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer mailServer.Close()

	llm := anthropic.NewClient("k", "m")
	llm.SetTestTransport(llmServer.URL)
	mail := mailer.New("SG.k", "clerk@example.com", time.Second, discardLogger())
	mail.SetTestTransport(mailServer.URL)

	dir := filepath.Join(t.TempDir(), "transcripts")
	p := New(
		archive.New(dir),
		summarizer.New(llm, time.Second, discardLogger()),
		imagesource.New(imageServer.URL, time.Second, discardLogger()),
		mail,
		Options{To: "a@example.com", Stego: true},
		discardLogger(),
	)

	if err := p.Finalize(context.Background(), testSnap, captionTranscript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected exactly one delivery, got %d", requests)
	}
	if len(got) != 2 || got[0].Filename != "transcript.txt" || got[1].Filename != "summary.txt" {
		t.Fatalf("unexpected attachments: %+v", got)
	}
	summary, _ := base64.StdEncoding.DecodeString(got[1].Content)
	if string(summary) != "Minutes: ship Friday" {
		t.Errorf("unexpected summary attachment %q", summary)
	}
}
