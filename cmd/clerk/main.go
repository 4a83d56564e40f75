package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/clerk/internal/anthropic"
	"github.com/MikeSquared-Agency/clerk/internal/api"
	"github.com/MikeSquared-Agency/clerk/internal/archive"
	"github.com/MikeSquared-Agency/clerk/internal/audio"
	"github.com/MikeSquared-Agency/clerk/internal/browser"
	"github.com/MikeSquared-Agency/clerk/internal/callback"
	"github.com/MikeSquared-Agency/clerk/internal/captions"
	"github.com/MikeSquared-Agency/clerk/internal/config"
	"github.com/MikeSquared-Agency/clerk/internal/finalize"
	"github.com/MikeSquared-Agency/clerk/internal/hermes"
	"github.com/MikeSquared-Agency/clerk/internal/imagesource"
	"github.com/MikeSquared-Agency/clerk/internal/mailer"
	"github.com/MikeSquared-Agency/clerk/internal/meeting"
	"github.com/MikeSquared-Agency/clerk/internal/metrics"
	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/stego"
	"github.com/MikeSquared-Agency/clerk/internal/store"
	"github.com/MikeSquared-Agency/clerk/internal/summarizer"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

func main() {
	cfg := config.Load()
	if err := applyFlags(&cfg, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg.LogLevel)

	if err := validate(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("clerk finished with error", "error", err)
		os.Exit(1)
	}
	slog.Info("clerk stopped")
}

// applyFlags lets the command line override the environment for one run.
func applyFlags(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("clerk", flag.ContinueOnError)
	fs.StringVar(&cfg.MeetingURL, "url", cfg.MeetingURL, "Meeting URL")
	fs.StringVar(&cfg.EmailTo, "email", cfg.EmailTo, "Recipient of the meeting summary")
	fs.StringVar(&cfg.MeetingID, "id", cfg.MeetingID, "Meeting identifier reported back on completion")
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, "Meeting platform: meet|teams")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Capture strategy: captions|audio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Platform = strings.ToLower(cfg.Platform)
	cfg.Strategy = strings.ToLower(cfg.Strategy)
	return nil
}

func validate(cfg config.Config) error {
	if cfg.MeetingURL == "" {
		return errors.New("meeting URL is required (-url or MEETING_URL)")
	}
	switch transcript.Kind(cfg.Strategy) {
	case transcript.KindCaptions, transcript.KindAudio:
	default:
		return fmt.Errorf("unknown capture strategy %q", cfg.Strategy)
	}
	if cfg.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	platform, err := meeting.ForName(cfg.Platform, cfg.BotName, meeting.Timeouts{}, logger)
	if err != nil {
		return err
	}
	sess := session.New(cfg.MeetingID, platform.Name(), platform.NormalizeURL(cfg.MeetingURL), transcript.Kind(cfg.Strategy))

	// The browser outlives ctx; the controller closes it once capture ends.
	chrome, err := browser.NewChrome(context.Background(), browser.Options{
		ProfileDir: cfg.ChromeProfile,
		Headless:   cfg.ChromeHeadless,
	}, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	capturer := newCapturer(cfg, sess, chrome, platform, logger)

	met := metrics.New()
	met.WatchSession(sess)

	// Finalization pipeline
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	opts := finalize.Options{
		To:           cfg.EmailTo,
		Stego:        cfg.StegoEnabled,
		Passphrase:   cfg.StegoPassphrase,
		ImageTimeout: cfg.ImageTimeout,
		EmailTimeout: cfg.EmailTimeout,
	}
	if cfg.SendGridAPIKey == "" || cfg.EmailFrom == "" {
		slog.Warn("sendgrid not configured, transcripts are kept locally only")
		opts.To = ""
	}
	if cfg.StegoEnabled && cfg.StegoPassphrase == "" {
		slog.Warn("STEGO_PASSPHRASE not set, using the legacy passphrase", "passphrase", stego.LegacyPassphrase)
	}

	pipeline := finalize.New(
		archive.New(cfg.TranscriptDir),
		summarizer.New(llm, cfg.SummaryTimeout, logger),
		imagesource.New(cfg.ImageSourceURL, cfg.ImageTimeout, logger),
		mailer.New(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailTimeout, logger),
		opts,
		logger,
	).WithObserver(met)

	ctrl := session.NewController(sess, chrome, platform, capturer, pipeline, session.Config{
		SilenceTimeout:    cfg.SilenceTimeout,
		StatusInterval:    cfg.StatusInterval,
		EndMarkerInterval: cfg.EndMarkerInterval,
	}, logger)
	ctrl.AddListener(met)

	// Database (optional)
	if cfg.DatabaseURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := store.New(dbCtx, cfg.DatabaseURL)
		if err == nil {
			err = db.EnsureSchema(dbCtx)
			if err != nil {
				db.Close()
			}
		}
		cancel()
		if err != nil {
			slog.Warn("database unavailable, continuing without it", "error", err)
		} else {
			defer db.Close()
			pipeline.WithStore(db)
			ctrl.AddReporter(db)
			slog.Info("database connected")
		}
	}

	// NATS/Hermes (optional)
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, "clerk-"+sess.ID.String(), logger)
		if err != nil {
			slog.Warn("failed to connect to NATS, continuing without events", "error", err)
		} else {
			defer hermesClient.Close()
			events := hermes.NewEvents(hermesClient, logger)
			ctrl.AddListener(events)
			ctrl.AddReporter(events)
			if err := events.ListenStop(ctrl); err != nil {
				slog.Warn("failed to subscribe to stop commands", "error", err)
			}
		}
	}

	if cfg.FrontendURL != "" {
		ctrl.AddReporter(callback.New(cfg.FrontendURL, logger))
	}

	// HTTP API
	if cfg.Port > 0 {
		apiCtx, cancelAPI := context.WithCancel(context.Background())
		defer cancelAPI()
		srv := api.NewServer(cfg.Port, cfg.APIToken, ctrl, met, logger)
		go func() {
			if err := srv.Start(apiCtx); err != nil {
				slog.Error("HTTP server error", "error", err)
			}
		}()
	}

	slog.Info("clerk ready",
		"platform", platform.Name(),
		"strategy", cfg.Strategy,
		"session_id", sess.ID.String(),
		"meeting_id", cfg.MeetingID,
		"port", cfg.Port,
	)

	return ctrl.Run(ctx)
}

func newCapturer(cfg config.Config, sess *session.Session, surface browser.Surface, platform meeting.Platform, logger *slog.Logger) session.Capturer {
	if transcript.Kind(cfg.Strategy) == transcript.KindAudio {
		runner := audio.ExecRunner{}
		return audio.NewCapturer(surface, runner, audio.Config{
			Dir:    filepath.Join(cfg.AudioDir, sess.ID.String()),
			FFmpeg: cfg.FFmpegPath,
			Transcriber: &audio.Transcriber{
				Runner: runner,
				Python: cfg.PythonPath,
				Script: cfg.TranscribeScript,
				Model:  cfg.WhisperModel,
			},
		}, logger)
	}

	layout := platform.Captions()
	return captions.NewCapturer(surface, captions.Config{
		Observer: captions.ObserverConfig{
			Regions:  layout.Regions,
			Fragment: layout.Fragment,
			Speaker:  layout.Speaker,
		},
		Polling:      layout.Polling,
		Debounce:     cfg.CaptionDebounce,
		PollInterval: cfg.CaptionDebounce,
		Cutoff:       cfg.CaptionCutoff,
	}, logger)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
