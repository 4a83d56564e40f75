// Package imagesource fetches the cover image that carries the embedded
// summary.
package imagesource

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://picsum.photos"
	DefaultWidth   = 1200
	DefaultHeight  = 800

	maxImageBytes = 32 << 20
)

type Source struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	Width  int
	Height int
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

// Fetch downloads a random Width x Height raster and decodes it.
func (s *Source) Fetch(ctx context.Context) (image.Image, error) {
	url := fmt.Sprintf("%s/%d/%d", s.baseURL, s.Width, s.Height)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	img, format, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	s.logger.Info("image fetched", "format", format, "width", b.Dx(), "height", b.Dy())
	return img, nil
}
