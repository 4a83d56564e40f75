package transcript

import (
	"strings"
	"testing"
)

func TestText_Captions(t *testing.T) {
	tr := Transcript{
		Kind: KindCaptions,
		Segments: []Segment{
			{Speaker: "Ana", Text: "Hi", Start: 0, End: 1},
			{Speaker: "", Text: " there ", Start: 1, End: 2},
		},
	}

	got := tr.Text()
	want := "Ana: Hi\nUnknown Speaker: there"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestText_Audio(t *testing.T) {
	tr := Transcript{
		Kind:     KindAudio,
		Segments: []Segment{{Text: "Hello, welcome.", Start: 0, End: 2.5}},
	}

	got := tr.Text()
	if !strings.Contains(got, "[   0.0s →    2.5s]  Hello, welcome.") {
		t.Errorf("unexpected audio rendering: %q", got)
	}
}

func TestText_NoSpeech(t *testing.T) {
	tr := Transcript{Kind: KindAudio, NoSpeech: true}
	if tr.Text() != NoSpeechMarker {
		t.Errorf("expected no-speech marker, got %q", tr.Text())
	}
	if tr.Empty() {
		t.Error("no-speech transcript should not count as empty")
	}
}

func TestEmpty(t *testing.T) {
	if !(Transcript{}).Empty() {
		t.Error("zero transcript should be empty")
	}
	blank := Transcript{Segments: []Segment{{Text: "  "}}}
	if !blank.Empty() {
		t.Error("whitespace-only transcript should be empty")
	}
}

func TestBuilder_FreezeStopsAppends(t *testing.T) {
	b := NewBuilder(KindCaptions)
	b.Append(Segment{Speaker: "A", Text: "one"})
	b.Append(Segment{Speaker: "B", Text: "two"})

	tr := b.Freeze()
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if tr.Segments[0].Text != "one" || tr.Segments[1].Text != "two" {
		t.Errorf("order not preserved: %+v", tr.Segments)
	}

	if b.Append(Segment{Text: "late"}) {
		t.Error("append after freeze should be rejected")
	}
	if len(tr.Segments) != 2 || b.Len() != 2 {
		t.Error("frozen transcript was mutated")
	}
}
