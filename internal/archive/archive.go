// Package archive writes transcripts to local disk. It runs before any
// network step so the transcript survives every later failure.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// Record is the JSON sidecar saved next to the rendered transcript.
type Record struct {
	Session    session.Snapshot      `json:"session"`
	Transcript transcript.Transcript `json:"transcript"`
	SavedAt    time.Time             `json:"saved_at"`
}

// Paths are the files produced by one Save.
type Paths struct {
	Text string
	JSON string
}

type Archive struct {
	dir string
	now func() time.Time
}

func New(dir string) *Archive {
	if dir == "" {
		dir = "./transcripts"
	}
	return &Archive{dir: expandHome(dir), now: time.Now}
}

func (a *Archive) Dir() string { return a.dir }

// Save writes the rendered transcript and its sidecar. The text file is
// written first; a sidecar failure still returns the text path.
func (a *Archive) Save(snap session.Snapshot, tr transcript.Transcript) (Paths, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("mkdir: %w", err)
	}

	now := a.now().UTC()
	base := fmt.Sprintf("%s_transcript_%s_%s", tr.Kind, now.Format("2006-01-02T15-04-05"), shortID(snap.ID))

	var p Paths
	p.Text = filepath.Join(a.dir, base+".txt")
	if err := os.WriteFile(p.Text, []byte(tr.Text()+"\n"), 0o644); err != nil {
		return Paths{}, fmt.Errorf("write transcript: %w", err)
	}

	data, err := json.MarshalIndent(Record{Session: snap, Transcript: tr, SavedAt: now}, "", "  ")
	if err != nil {
		return p, fmt.Errorf("marshal sidecar: %w", err)
	}
	jsonPath := filepath.Join(a.dir, base+".json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return p, fmt.Errorf("write sidecar: %w", err)
	}
	p.JSON = jsonPath
	return p, nil
}

// Load reads a sidecar back.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	return &r, nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "session"
	}
	return id
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
