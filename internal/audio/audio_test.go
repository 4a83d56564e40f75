package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/clerk/internal/browser/browsertest"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuffer_PreservesOrder(t *testing.T) {
	var b Buffer
	c1 := []byte{0x1a, 0x45, 0xdf, 0xa3}
	c2 := []byte("opus-frames")
	c3 := []byte{0x00, 0xff}

	b.Append(c1)
	b.Append(c2)
	b.Append(nil)
	b.Append(c3)

	want := append(append(append([]byte{}, c1...), c2...), c3...)
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %x, want %x", got, want)
	}
	if b.Len() != 3 || b.Size() != len(want) {
		t.Errorf("unexpected counts: len=%d size=%d", b.Len(), b.Size())
	}
}

func TestBuffer_CopiesChunk(t *testing.T) {
	var b Buffer
	chunk := []byte("abc")
	b.Append(chunk)
	chunk[0] = 'x'
	if string(b.Bytes()) != "abc" {
		t.Error("buffer aliased caller memory")
	}
}

func TestParseOutput_Noise(t *testing.T) {
	clean := []byte("Loading model: small\nUserWarning: FP16 is not supported on CPU\n" +
		`{"segments":[{"start":0.0,"end":2.5,"text":" Hello, welcome."}],"language":"en","duration":120.5}` +
		"\nDone.\n")

	res, err := ParseOutput(clean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].End != 2.5 || res.Language != "en" || res.Duration != 120.5 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestParseOutput_Errors(t *testing.T) {
	if _, err := ParseOutput([]byte("Killed")); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
	if _, err := ParseOutput([]byte(`} nothing {`)); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON for reversed braces, got %v", err)
	}
	_, err := ParseOutput([]byte(`{"error": "CUDA out of memory"}`))
	if err == nil || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("expected engine error surfaced, got %v", err)
	}
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	// results keyed by program name
	results map[string]fakeResult
}

type fakeResult struct {
	stdout, stderr string
	err            error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, args})
	f.mu.Unlock()
	r := f.results[name]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

type events struct {
	mu     sync.Mutex
	chunks int
	bytes  int
}

func (e *events) Activity(segments, chunks, bytes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks += chunks
	e.bytes += bytes
}

func (e *events) StopRequested(string) {}

func newTestCapturer(t *testing.T, runner *fakeRunner) (*Capturer, *browsertest.Fake, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "session")
	f := browsertest.New()
	c := NewCapturer(f, runner, Config{
		Dir:    dir,
		FFmpeg: "ffmpeg",
		Transcriber: &Transcriber{
			Runner: runner,
			Python: "python3",
			Script: "transcribe.py",
			Model:  "small",
		},
	}, discardLogger())
	if err := c.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c, f, dir
}

func sendChunk(f *browsertest.Fake, b []byte) {
	f.Call(BindingName, base64.StdEncoding.EncodeToString(b))
}

func TestCapturer_Finalize(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"python3": {stdout: "noise\n" + `{"segments":[{"start":0,"end":2.5,"text":" Hello."},{"start":2.5,"end":4,"text":"Bye. "}],"language":"en","duration":4}`},
	}}
	c, f, dir := newTestCapturer(t, runner)

	if len(f.InitScripts) != 1 || !strings.Contains(f.InitScripts[0], "RTCPeerConnection") {
		t.Fatal("expected interceptor installed before navigation")
	}

	ev := &events{}
	_ = c.Start(context.Background(), ev)
	sendChunk(f, []byte("AAA"))
	sendChunk(f, []byte("BB"))

	tr, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, webmName))
	if err != nil || string(raw) != "AAABB" {
		t.Errorf("raw recording = %q (%v)", raw, err)
	}
	if ev.chunks != 2 || ev.bytes != 5 {
		t.Errorf("unexpected activity: %+v", ev)
	}
	if tr.Kind != transcript.KindAudio || len(tr.Segments) != 2 || tr.Segments[0].Text != "Hello." {
		t.Errorf("unexpected transcript: %+v", tr)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected ffmpeg then transcriber, got %+v", runner.calls)
	}
	ff := strings.Join(runner.calls[0].args, " ")
	if runner.calls[0].name != "ffmpeg" || !strings.Contains(ff, "-ac 1 -ar 16000") {
		t.Errorf("unexpected ffmpeg call: %s", ff)
	}
	py := strings.Join(runner.calls[1].args, " ")
	if !strings.Contains(py, "--model small --output json") || !strings.Contains(py, wavName) {
		t.Errorf("unexpected transcriber call: %s", py)
	}
}

func TestCapturer_NoSpeech(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"python3": {stdout: `{"segments":[],"language":"en","duration":30}`},
	}}
	c, f, _ := newTestCapturer(t, runner)
	sendChunk(f, []byte("silence"))

	tr, err := c.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !tr.NoSpeech || tr.Text() != transcript.NoSpeechMarker {
		t.Errorf("expected no-speech marker, got %+v", tr)
	}
}

func TestCapturer_ConvertFailureKeepsRaw(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"ffmpeg": {stderr: "Invalid data found when processing input", err: errors.New("exit status 1")},
	}}
	c, f, dir := newTestCapturer(t, runner)
	sendChunk(f, []byte("corrupt"))

	tr, err := c.Finalize(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if !tr.Empty() {
		t.Error("expected empty transcript")
	}
	if _, err := os.Stat(filepath.Join(dir, webmName)); err != nil {
		t.Errorf("raw recording should be kept: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("transcriber must not run after conversion failure, calls=%d", len(runner.calls))
	}
}

func TestCapturer_TranscriberExitFailure(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"python3": {stderr: "Traceback ...", err: errors.New("exit status 1")},
	}}
	c, f, _ := newTestCapturer(t, runner)
	sendChunk(f, []byte("audio"))

	tr, err := c.Finalize(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !tr.Empty() || tr.Kind != transcript.KindAudio {
		t.Errorf("expected empty audio transcript, got %+v", tr)
	}
}

func TestCapturer_NoAudio(t *testing.T) {
	c, _, _ := newTestCapturer(t, &fakeRunner{})
	if _, err := c.Finalize(context.Background()); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}

func TestTranscriber_JSONOnStderr(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"python3": {stdout: "progress 100%", stderr: `{"segments":[{"start":1,"end":2,"text":"hi"}],"language":"en","duration":2}`},
	}}
	tr := &Transcriber{Runner: runner, Python: "python3", Script: "t.py", Model: "small"}
	res, err := tr.Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 1 {
		t.Errorf("expected 1 segment, got %+v", res)
	}
}

func TestInterceptorScript(t *testing.T) {
	s := InterceptorScript("", 0)
	if !strings.Contains(s, `"__clerkAudio"`) || !strings.Contains(s, "5000") {
		t.Errorf("unexpected defaults in script")
	}
}
