// Package captions turns a live caption UI, which rewrites its text in
// place as recognition refines it, into an ordered transcript of
// speaker-attributed deltas.
//
// The page side only reports snapshots of caption fragments. All state
// (stability, deltas, speaker continuity) lives in the host process.
package captions

import (
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// UnknownSpeaker is attributed until the first label is seen.
const UnknownSpeaker = "Unknown Speaker"

// Mutation is one snapshot of a caption fragment sent by the page.
type Mutation struct {
	// ID identifies the fragment element for its DOM lifetime.
	ID int `json:"id"`
	// Added is set when the fragment itself was inserted into the DOM.
	Added   bool   `json:"added"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type fragment struct {
	id           int
	speaker      string
	text         string
	lastEmitted  string
	pendingSince time.Time
}

// Delta is an emitted segment together with the full text its fragment
// held at the time.
type Delta struct {
	transcript.Segment
	Full string
}

// Reconciler is a single-goroutine state machine: feed it mutations and
// clock ticks, collect the deltas it returns. Every fragment seen stays
// tracked for the session, so a fragment reported again resumes from what
// it already emitted.
type Reconciler struct {
	stability Stability
	cutoff    time.Duration

	active      *fragment
	tracked     map[int]*fragment
	lastSpeaker string
	seq         int
}

func NewReconciler(stability Stability, cutoff time.Duration) *Reconciler {
	return &Reconciler{
		stability:   stability,
		cutoff:      cutoff,
		tracked:     make(map[int]*fragment),
		lastSpeaker: UnknownSpeaker,
	}
}

// Observe applies a page snapshot. Switching to another fragment first
// flushes whatever the previous one still had pending.
func (r *Reconciler) Observe(m Mutation, now time.Time) []Delta {
	var out []Delta

	if r.active == nil || r.active.id != m.ID {
		if d, ok := r.emit(r.active); ok {
			out = append(out, d)
		}
		r.active = r.track(m.ID)
		r.stability.Reset()
	}

	f := r.active
	text := strings.TrimSpace(m.Text)
	changed := text != f.text
	f.text = text
	if sp := strings.TrimSpace(m.Speaker); sp != "" {
		f.speaker = sp
	}

	if changed && text != f.lastEmitted && f.pendingSince.IsZero() {
		f.pendingSince = now
	}
	r.stability.Mutated(now, changed)
	return out
}

// Tick emits the active fragment's delta if it has stabilised or has been
// pending longer than the hard cutoff.
func (r *Reconciler) Tick(now time.Time) []Delta {
	f := r.active
	if f == nil || f.pendingSince.IsZero() {
		return nil
	}
	if !r.stability.Ready(now) && now.Sub(f.pendingSince) < r.cutoff {
		return nil
	}
	if d, ok := r.emit(f); ok {
		return []Delta{d}
	}
	return nil
}

// Flush emits anything still pending, regardless of stability.
func (r *Reconciler) Flush() []Delta {
	if d, ok := r.emit(r.active); ok {
		return []Delta{d}
	}
	return nil
}

func (r *Reconciler) track(id int) *fragment {
	if f, ok := r.tracked[id]; ok {
		return f
	}
	f := &fragment{id: id}
	r.tracked[id] = f
	return f
}

func (r *Reconciler) emit(f *fragment) (Delta, bool) {
	if f == nil || f.pendingSince.IsZero() {
		return Delta{}, false
	}
	f.pendingSince = time.Time{}
	r.stability.Reset()

	speaker := f.speaker
	if speaker != "" {
		r.lastSpeaker = speaker
	} else {
		speaker = r.lastSpeaker
	}

	delta := f.text
	if f.lastEmitted != "" && strings.HasPrefix(f.text, f.lastEmitted) {
		delta = strings.TrimSpace(f.text[len(f.lastEmitted):])
	}
	f.lastEmitted = f.text

	if delta == "" || strings.EqualFold(delta, speaker) {
		return Delta{}, false
	}

	d := Delta{
		Segment: transcript.Segment{
			Speaker: speaker,
			Text:    delta,
			Start:   float64(r.seq),
			End:     float64(r.seq + 1),
		},
		Full: f.text,
	}
	r.seq++
	return d, true
}
