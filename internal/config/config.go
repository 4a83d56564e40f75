package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	APIToken string

	Platform       string
	MeetingURL     string
	MeetingID      string
	Strategy       string
	BotName        string
	ChromeProfile  string
	ChromeHeadless bool

	SilenceTimeout    time.Duration
	CaptionDebounce   time.Duration
	CaptionCutoff     time.Duration
	StatusInterval    time.Duration
	EndMarkerInterval time.Duration

	AnthropicAPIKey string
	AnthropicModel  string
	SummaryTimeout  time.Duration

	SendGridAPIKey string
	EmailTo        string
	EmailFrom      string
	EmailTimeout   time.Duration

	StegoEnabled    bool
	StegoPassphrase string
	ImageSourceURL  string
	ImageTimeout    time.Duration

	TranscriptDir    string
	AudioDir         string
	FFmpegPath       string
	PythonPath       string
	TranscribeScript string
	WhisperModel     string

	FrontendURL string
	NatsURL     string
	NatsToken   string
	DatabaseURL string
}

// Load reads the environment, after merging an optional .env file in the
// working directory. Variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:     envInt("CLERK_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		APIToken: envStr("CLERK_API_TOKEN", ""),

		Platform:       strings.ToLower(envStr("CLERK_PLATFORM", "meet")),
		MeetingURL:     envStr("MEETING_URL", ""),
		MeetingID:      envStr("MEETING_ID", ""),
		Strategy:       strings.ToLower(envStr("CLERK_STRATEGY", "captions")),
		BotName:        envStr("BOT_NAME", "Clerk"),
		ChromeProfile:  envStr("CHROME_PROFILE_DIR", ""),
		ChromeHeadless: envBool("CHROME_HEADLESS", false),

		SilenceTimeout:    envDuration("SILENCE_TIMEOUT", 10*time.Minute),
		CaptionDebounce:   envDuration("CAPTION_DEBOUNCE", 800*time.Millisecond),
		CaptionCutoff:     envDuration("CAPTION_CUTOFF", 10*time.Second),
		StatusInterval:    envDuration("STATUS_INTERVAL", 20*time.Second),
		EndMarkerInterval: envDuration("END_MARKER_INTERVAL", 5*time.Second),

		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("CLERK_MODEL", "claude-sonnet-4-20250514"),
		SummaryTimeout:  envDuration("SUMMARY_TIMEOUT", 20*time.Second),

		SendGridAPIKey: envStr("SENDGRID_API_KEY", ""),
		EmailTo:        envStr("EMAIL_TO", ""),
		EmailFrom:      envStr("EMAIL_FROM", ""),
		EmailTimeout:   envDuration("EMAIL_TIMEOUT", 15*time.Second),

		StegoEnabled:    envBool("STEGO_ENABLED", true),
		StegoPassphrase: envStr("STEGO_PASSPHRASE", ""),
		ImageSourceURL:  envStr("IMAGE_SOURCE_URL", "https://picsum.photos"),
		ImageTimeout:    envDuration("IMAGE_TIMEOUT", 10*time.Second),

		TranscriptDir:    envStr("TRANSCRIPT_DIR", "./transcripts"),
		AudioDir:         envStr("AUDIO_DIR", "./audio_chunks"),
		FFmpegPath:       envStr("FFMPEG_PATH", "ffmpeg"),
		PythonPath:       envStr("PYTHON_PATH", "python3"),
		TranscribeScript: envStr("TRANSCRIBE_SCRIPT", "./scripts/transcribe.py"),
		WhisperModel:     envStr("WHISPER_MODEL", "small"),

		FrontendURL: envStr("FRONTEND_URL", ""),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
