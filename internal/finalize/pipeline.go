// Package finalize turns a frozen transcript into delivered artifacts.
//
// Steps run in order: local persistence, summarization, image acquisition,
// embedding, delivery. Persistence always runs first. A failed summary aborts
// the rest; a failed image or embedding only drops the image attachment.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/archive"
	"github.com/MikeSquared-Agency/clerk/internal/mailer"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/stego"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// ErrEmptyTranscript means there was nothing to summarize.
var ErrEmptyTranscript = errors.New("empty transcript")

type Summarizer interface {
	Summarize(ctx context.Context, title string, date time.Time, text string) (string, error)
}

type ImageSource interface {
	Fetch(ctx context.Context) (image.Image, error)
}

type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// TranscriptStore is an optional durable copy next to the local file.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, snap session.Snapshot, tr transcript.Transcript) error
}

// StepObserver counts step outcomes.
type StepObserver interface {
	ObserveStep(step, outcome string)
}

// Step names.
const (
	StepPersist   = "persist"
	StepStore     = "store"
	StepSummarize = "summarize"
	StepImage     = "image"
	StepEmbed     = "embed"
	StepEmail     = "email"
)

type Options struct {
	// To is the delivery address; empty skips delivery.
	To string
	// Stego enables image acquisition and embedding.
	Stego      bool
	Passphrase string
	// Timeouts bound each network step.
	ImageTimeout time.Duration
	EmailTimeout time.Duration
	StoreTimeout time.Duration
}

type Pipeline struct {
	archive    *archive.Archive
	summarizer Summarizer
	images     ImageSource
	sender     Sender
	store      TranscriptStore
	observer   StepObserver
	opts       Options
	logger     *slog.Logger
}

func New(arc *archive.Archive, sum Summarizer, images ImageSource, sender Sender, opts Options, logger *slog.Logger) *Pipeline {
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 10 * time.Second
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = 15 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Passphrase == "" {
		opts.Passphrase = stego.LegacyPassphrase
	}
	return &Pipeline{
		archive:    arc,
		summarizer: sum,
		images:     images,
		sender:     sender,
		opts:       opts,
		logger:     logger,
	}
}

// WithStore adds a database copy of the transcript.
func (p *Pipeline) WithStore(s TranscriptStore) *Pipeline {
	p.store = s
	return p
}

// WithObserver reports step outcomes to o.
func (p *Pipeline) WithObserver(o StepObserver) *Pipeline {
	p.observer = o
	return p
}

// Finalize runs the steps for one session. The returned error is the step
// that stopped the pipeline or the delivery failure; degraded steps are only
// logged.
func (p *Pipeline) Finalize(ctx context.Context, snap session.Snapshot, tr transcript.Transcript) error {
	log := p.logger.With("session_id", snap.ID)
	text := tr.Text()

	paths, err := p.archive.Save(snap, tr)
	if err != nil {
		p.observe(StepPersist, err)
		log.Error("failed to save transcript locally", "error", err)
	} else {
		p.observe(StepPersist, nil)
		log.Info("transcript saved", "path", paths.Text, "sidecar", paths.JSON, "segments", len(tr.Segments))
	}

	if p.store != nil {
		sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
		err := p.store.SaveTranscript(sctx, snap, tr)
		cancel()
		p.observe(StepStore, err)
		if err != nil {
			log.Error("failed to store transcript", "error", err)
		}
	}

	if tr.Empty() {
		log.Warn("transcript is empty, nothing to summarize")
		return ErrEmptyTranscript
	}

	title := snap.Title
	if title == "" {
		title = "Meeting"
	}

	summary, err := p.summarizer.Summarize(ctx, title, snap.StartedAt, text)
	p.observe(StepSummarize, err)
	if err != nil {
		log.Error("summarization failed, local transcript is the only artifact", "error", err, "path", paths.Text)
		return fmt.Errorf("summarize: %w", err)
	}

	var pngData []byte
	if p.opts.Stego {
		pngData = p.stegoImage(ctx, log, summary)
	}

	if p.opts.To == "" {
		log.Warn("no recipient configured, skipping email")
		return nil
	}

	msg := p.message(snap, tr, title, text, summary, pngData)
	ectx, cancel := context.WithTimeout(ctx, p.opts.EmailTimeout)
	defer cancel()
	err = p.sender.Send(ectx, msg)
	p.observe(StepEmail, err)
	if err != nil {
		log.Error("email delivery failed", "error", err, "path", paths.Text)
		return fmt.Errorf("deliver: %w", err)
	}
	log.Info("summary delivered", "to", p.opts.To, "attachments", len(msg.Attachments))
	return nil
}

// stegoImage returns the PNG carrying the summary, or nil when any part of
// producing it failed.
func (p *Pipeline) stegoImage(ctx context.Context, log *slog.Logger, summary string) []byte {
	ictx, cancel := context.WithTimeout(ctx, p.opts.ImageTimeout)
	img, err := p.images.Fetch(ictx)
	cancel()
	p.observe(StepImage, err)
	if err != nil {
		log.Warn("image acquisition failed, sending without image", "error", err)
		return nil
	}

	out, err := stego.Embed(img, summary, p.opts.Passphrase)
	if err == nil {
		var data []byte
		data, err = stego.EncodePNG(out)
		if err == nil {
			p.observe(StepEmbed, nil)
			return data
		}
	}
	p.observe(StepEmbed, err)
	log.Warn("embedding failed, sending without image", "error", err)
	return nil
}

func (p *Pipeline) message(snap session.Snapshot, tr transcript.Transcript, title, text, summary string, pngData []byte) mailer.Message {
	subject := "Meeting Summary - " + title
	transcriptName := "transcript.txt"
	source := "Live captions"
	if tr.Kind == transcript.KindAudio {
		subject = "[Audio] " + subject
		transcriptName = "audio_transcript.txt"
		source = "Audio transcription"
	}

	duration := time.Duration(snap.ElapsedSec) * time.Second
	if tr.Kind == transcript.KindAudio && tr.Duration > 0 {
		duration = time.Duration(tr.Duration * float64(time.Second))
	}

	rule := strings.Repeat("-", 40)
	var sb strings.Builder
	fmt.Fprintf(&sb, "MEETING DETAILS\n%s\n", rule)
	fmt.Fprintf(&sb, "Title: %s\n", title)
	fmt.Fprintf(&sb, "Date: %s\n", snap.StartedAt.Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&sb, "Duration: %s\n", duration.Round(time.Second))
	fmt.Fprintf(&sb, "Source: %s\n", source)
	if snap.MeetingID != "" {
		fmt.Fprintf(&sb, "Meeting ID: %s\n", snap.MeetingID)
	}
	fmt.Fprintf(&sb, "\nSUMMARY\n%s\n%s\n\n%s\n", rule, summary, rule)
	if pngData != nil {
		sb.WriteString("\nFull transcript, summary and summary image attached.\n")
	} else {
		sb.WriteString("\nFull transcript and summary attached.\n")
	}

	attachments := []mailer.Attachment{
		{Filename: transcriptName, Type: "text/plain", Content: []byte(text)},
		{Filename: "summary.txt", Type: "text/plain", Content: []byte(summary)},
	}
	if pngData != nil {
		attachments = append(attachments, mailer.Attachment{
			Filename: "meeting_summary_image.png",
			Type:     "image/png",
			Content:  pngData,
		})
	}

	return mailer.Message{
		To:          p.opts.To,
		Subject:     subject,
		Text:        sb.String(),
		Attachments: attachments,
	}
}

func (p *Pipeline) observe(step string, err error) {
	if p.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	p.observer.ObserveStep(step, outcome)
}
