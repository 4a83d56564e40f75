package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/session"
)

const (
	// SubjectSessionPrefix is followed by the lower-case state name.
	SubjectSessionPrefix = "swarm.clerk.session."
	// SubjectStatus carries the final done/failed outcome.
	SubjectStatus = "swarm.clerk.session.status"
	// SubjectStop asks a running clerk to end capture.
	SubjectStop = "swarm.clerk.control.stop"
)

// SessionEvent is published on every lifecycle transition.
type SessionEvent struct {
	Session session.Snapshot `json:"session"`
	From    session.State    `json:"from"`
	At      time.Time        `json:"at"`
}

// StatusEvent is published once the session has an outcome.
type StatusEvent struct {
	MeetingID string           `json:"meetingId"`
	Status    session.Status   `json:"status"`
	Session   session.Snapshot `json:"session"`
}

// StopCommand targets one session by ID or meeting ID. Empty fields match
// any session.
type StopCommand struct {
	SessionID string `json:"session_id,omitempty"`
	MeetingID string `json:"meeting_id,omitempty"`
}

func (c StopCommand) matches(snap session.Snapshot) bool {
	if c.SessionID != "" && c.SessionID != snap.ID {
		return false
	}
	if c.MeetingID != "" && c.MeetingID != snap.MeetingID {
		return false
	}
	return true
}

type bus interface {
	Publish(subject string, data any) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

// Events mirrors a session onto the bus. It is a session.Listener and a
// session.Reporter.
type Events struct {
	bus    bus
	logger *slog.Logger
}

func NewEvents(b bus, logger *slog.Logger) *Events {
	return &Events{bus: b, logger: logger}
}

func (e *Events) Transition(snap session.Snapshot, from session.State) {
	subject := SubjectSessionPrefix + strings.ToLower(string(snap.State))
	if err := e.bus.Publish(subject, SessionEvent{Session: snap, From: from, At: time.Now().UTC()}); err != nil {
		e.logger.Warn("failed to publish session event", "subject", subject, "error", err)
	}
}

func (e *Events) Report(ctx context.Context, snap session.Snapshot, status session.Status) error {
	return e.bus.Publish(SubjectStatus, StatusEvent{MeetingID: snap.MeetingID, Status: status, Session: snap})
}

// Stopper is the part of the controller a remote stop needs.
type Stopper interface {
	Session() *session.Session
	Stop() error
}

// ListenStop ends capture on s when a matching stop command arrives.
func (e *Events) ListenStop(s Stopper) error {
	return e.bus.Subscribe(SubjectStop, func(_ string, data []byte) {
		var cmd StopCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			e.logger.Warn("malformed stop command", "error", err)
			return
		}
		if !cmd.matches(s.Session().Snapshot()) {
			return
		}
		if err := s.Stop(); err != nil {
			e.logger.Info("stop command ignored", "error", err)
			return
		}
		e.logger.Info("stop command received over nats")
	})
}
