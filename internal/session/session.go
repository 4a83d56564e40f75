package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// State is a step of the capture lifecycle.
type State string

const (
	StateInit          State = "INIT"
	StateAuthenticated State = "AUTHENTICATED"
	StateJoined        State = "JOINED"
	StateCapturing     State = "CAPTURING"
	StateFinalizing    State = "FINALIZING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// States lists every state in lifecycle order.
var States = []State{
	StateInit, StateAuthenticated, StateJoined, StateCapturing,
	StateFinalizing, StateDone, StateFailed,
}

// Session is one meeting attendance. Counters are safe for concurrent use;
// everything else is written only by the Controller.
type Session struct {
	ID        uuid.UUID
	MeetingID string
	Platform  string
	URL       string
	Strategy  transcript.Kind
	StartedAt time.Time

	mu       sync.RWMutex
	title    string
	state    State
	joinedAt time.Time
	endedAt  time.Time
	reason   string

	lastActivity atomic.Int64
	segments     atomic.Int64
	chunks       atomic.Int64
	bytes        atomic.Int64
}

func New(meetingID, platform, url string, strategy transcript.Kind) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Platform:  platform,
		URL:       url,
		Strategy:  strategy,
		StartedAt: now,
		state:     StateInit,
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	switch st {
	case StateJoined:
		s.joinedAt = time.Now()
	case StateDone, StateFailed:
		if s.endedAt.IsZero() {
			s.endedAt = time.Now()
		}
	}
}

func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

func (s *Session) setTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Reason is the trigger that ended capture, empty while capturing.
func (s *Session) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

func (s *Session) setReason(r string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = r
}

// Elapsed is the time since the session started, or its total length once
// it has ended.
func (s *Session) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.endedAt.IsZero() {
		return s.endedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// RecordActivity marks capture activity now and adds to the counters.
func (s *Session) RecordActivity(segments, chunks, bytes int) {
	s.lastActivity.Store(time.Now().UnixNano())
	if segments > 0 {
		s.segments.Add(int64(segments))
	}
	if chunks > 0 {
		s.chunks.Add(int64(chunks))
	}
	if bytes > 0 {
		s.bytes.Add(int64(bytes))
	}
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Idle returns how long it has been since the last capture activity.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

func (s *Session) Segments() int64 { return s.segments.Load() }
func (s *Session) Chunks() int64   { return s.chunks.Load() }
func (s *Session) Bytes() int64    { return s.bytes.Load() }

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	ID           string    `json:"id"`
	MeetingID    string    `json:"meeting_id,omitempty"`
	Platform     string    `json:"platform"`
	Title        string    `json:"title,omitempty"`
	Strategy     string    `json:"strategy"`
	State        State     `json:"state"`
	Reason       string    `json:"reason,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	ElapsedSec   int64     `json:"elapsed_sec"`
	LastActivity time.Time `json:"last_activity"`
	Segments     int64     `json:"segments"`
	Chunks       int64     `json:"chunks"`
	Bytes        int64     `json:"bytes"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID.String(),
		MeetingID:    s.MeetingID,
		Platform:     s.Platform,
		Title:        s.Title(),
		Strategy:     string(s.Strategy),
		State:        s.State(),
		Reason:       s.Reason(),
		StartedAt:    s.StartedAt,
		ElapsedSec:   int64(s.Elapsed().Seconds()),
		LastActivity: s.LastActivity(),
		Segments:     s.Segments(),
		Chunks:       s.Chunks(),
		Bytes:        s.Bytes(),
	}
}
