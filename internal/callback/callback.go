// Package callback reports the session outcome to the application that
// requested the meeting.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/session"
)

const statusPath = "/api/meetings/status"

type Reporter struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// New returns a reporter posting to baseURL's meeting status endpoint.
func New(baseURL string, logger *slog.Logger) *Reporter {
	return &Reporter{
		url:    strings.TrimRight(baseURL, "/") + statusPath,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Report posts {"meetingId","status"}. Sessions without a meeting ID have
// nothing to report.
func (r *Reporter) Report(ctx context.Context, snap session.Snapshot, status session.Status) error {
	if snap.MeetingID == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"meetingId": snap.MeetingID,
		"status":    string(status),
	})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status callback returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	r.logger.Info("status reported", "meeting_id", snap.MeetingID, "status", status)
	return nil
}
