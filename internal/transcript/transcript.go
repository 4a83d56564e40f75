package transcript

import (
	"fmt"
	"strings"
	"sync"
)

// NoSpeechMarker is rendered in place of segments when the audio engine
// reported no speech at all.
const NoSpeechMarker = "(No speech detected)"

// Segment is one attributed piece of a transcript. For caption transcripts
// Start/End are sequence positions; for audio transcripts they are seconds.
type Segment struct {
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Kind identifies which capture strategy produced a transcript.
type Kind string

const (
	KindCaptions Kind = "captions"
	KindAudio    Kind = "audio"
)

// Transcript is the frozen, ordered result of a capture session.
type Transcript struct {
	Kind     Kind      `json:"kind"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	NoSpeech bool      `json:"no_speech,omitempty"`
	Segments []Segment `json:"segments"`
}

// Empty reports whether there is nothing worth summarizing.
func (t Transcript) Empty() bool {
	if t.NoSpeech {
		return false
	}
	for _, s := range t.Segments {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}

// Text renders the transcript the way it is persisted and attached to email.
func (t Transcript) Text() string {
	if t.NoSpeech && len(t.Segments) == 0 {
		return NoSpeechMarker
	}

	var sb strings.Builder
	for i, s := range t.Segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch t.Kind {
		case KindAudio:
			fmt.Fprintf(&sb, "[%6.1fs → %6.1fs]  %s", s.Start, s.End, strings.TrimSpace(s.Text))
		default:
			speaker := s.Speaker
			if speaker == "" {
				speaker = "Unknown Speaker"
			}
			fmt.Fprintf(&sb, "%s: %s", speaker, strings.TrimSpace(s.Text))
		}
	}
	return sb.String()
}

// Builder accumulates segments during capture. It is append-only until
// Freeze is called; appends after that are rejected.
type Builder struct {
	mu       sync.Mutex
	kind     Kind
	segments []Segment
	frozen   bool
}

func NewBuilder(kind Kind) *Builder {
	return &Builder{kind: kind}
}

// Append adds a segment in detection order. It returns false once the
// builder has been frozen.
func (b *Builder) Append(s Segment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return false
	}
	b.segments = append(b.segments, s)
	return true
}

// Len returns the number of segments appended so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// Freeze stops further appends and returns the transcript.
func (b *Builder) Freeze() Transcript {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
	out := make([]Segment, len(b.segments))
	copy(out, b.segments)
	return Transcript{Kind: b.kind, Segments: out}
}
