// Package mailer delivers meeting artifacts through the SendGrid v3 API.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultSendURL = "https://api.sendgrid.com/v3/mail/send"

// Attachment is one file sent inline with the message.
type Attachment struct {
	Filename string
	Type     string
	Content  []byte
}

type Message struct {
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

type Mailer struct {
	apiKey string
	from   string
	client *http.Client
	logger *slog.Logger
	apiURL string
}

func New(apiKey, from string, timeout time.Duration, logger *slog.Logger) *Mailer {
	return &Mailer{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: timeout},
		apiURL: defaultSendURL,
		logger: logger,
	}
}

// SetTestTransport points the mailer at a test server instead of the API.
func (m *Mailer) SetTestTransport(url string) {
	m.apiURL = url
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type attachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition"`
}

type personalization struct {
	To []address `json:"to"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Attachments      []attachment      `json:"attachments,omitempty"`
}

// Send dispatches msg. SendGrid acknowledges with 202; anything else is an
// error carrying the API's message.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("no recipient")
	}
	if m.from == "" {
		return errors.New("no sender address configured")
	}

	var to []address
	for _, addr := range strings.Split(msg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, address{Email: addr})
		}
	}

	payload := sendRequest{
		Personalizations: []personalization{{To: to}},
		From:             address{Email: m.from},
		Subject:          msg.Subject,
		Content:          []content{{Type: "text/plain", Value: msg.Text}},
	}
	for _, a := range msg.Attachments {
		typ := a.Type
		if typ == "" {
			typ = "application/octet-stream"
		}
		payload.Attachments = append(payload.Attachments, attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			Type:        typ,
			Disposition: "attachment",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var sgErr struct {
			Errors []struct {
				Message string `json:"message"`
				Field   string `json:"field"`
			} `json:"errors"`
		}
		if json.Unmarshal(respBody, &sgErr) == nil && len(sgErr.Errors) > 0 {
			return fmt.Errorf("sendgrid error %d: %s", resp.StatusCode, sgErr.Errors[0].Message)
		}
		return fmt.Errorf("sendgrid error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	m.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}
