package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrNoAudio means no chunk arrived during the whole session.
	ErrNoAudio = errors.New("no audio was captured")
	// ErrNoJSON means the transcriber printed no JSON object.
	ErrNoJSON = errors.New("no JSON object in transcriber output")
)

// Runner executes an external program to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Convert turns the recorded container into mono 16 kHz WAV.
func Convert(ctx context.Context, r Runner, ffmpeg, in, out string) error {
	_, stderr, err := r.Run(ctx, ffmpeg,
		"-y", "-i", in,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr, 400))
	}
	return nil
}

// Result is the transcriber's JSON document.
type Result struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// ParseOutput extracts the JSON object between the first '{' and the last
// '}' of out, ignoring log noise printed around it. An error field in the
// document is returned as an error.
func ParseOutput(out []byte) (Result, error) {
	first := bytes.IndexByte(out, '{')
	last := bytes.LastIndexByte(out, '}')
	if first < 0 || last < first {
		return Result{}, ErrNoJSON
	}

	var res Result
	if err := json.Unmarshal(out[first:last+1], &res); err != nil {
		return Result{}, fmt.Errorf("parse transcriber output: %w", err)
	}
	if res.Error != "" {
		return res, fmt.Errorf("transcriber error: %s", res.Error)
	}
	return res, nil
}

// Transcriber invokes the speech-to-text script once per recording.
type Transcriber struct {
	Runner Runner
	Python string
	Script string
	Model  string
}

func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (Result, error) {
	stdout, stderr, err := t.Runner.Run(ctx, t.Python, t.Script, wavPath, "--model", t.Model, "--output", "json")
	if err != nil {
		return Result{}, fmt.Errorf("transcriber: %w: %s", err, tail(stderr, 400))
	}

	res, perr := ParseOutput(stdout)
	if errors.Is(perr, ErrNoJSON) {
		// Some engines print the document on stderr.
		combined := append(append([]byte{}, stdout...), stderr...)
		res, perr = ParseOutput(combined)
	}
	return res, perr
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
