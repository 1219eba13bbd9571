package camera

import (
	"context"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// SnapshotSource polls an HTTP endpoint that returns a still image per
// request, e.g. an IP camera's snapshot URL. Requests are paced to the
// configured frame rate.
type SnapshotSource struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSnapshotSource creates a source polling url at most fps times per second.
func NewSnapshotSource(url string, fps int, client *http.Client) *SnapshotSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	return &SnapshotSource{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// SnapshotOpener returns an Opener that ignores the device index and opens url.
func SnapshotOpener(url string, client *http.Client) Opener {
	return OpenerFunc(func(_ int, s Settings) (Source, error) {
		return NewSnapshotSource(url, s.FPS, client), nil
	})
}

func (s *SnapshotSource) Read(ctx context.Context) (image.Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "waiting for next snapshot")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create snapshot request", goerr.V("url", s.url))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(ErrReadFailed, "snapshot request failed", goerr.V("url", s.url), goerr.V("error", err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(ErrReadFailed, "failed to read snapshot", goerr.V("url", s.url), goerr.V("error", err.Error()))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.Wrap(ErrReadFailed, "snapshot endpoint returned an error",
			goerr.V("url", s.url), goerr.V("status", resp.StatusCode))
	}

	img, err := embedding.DecodeImage(body)
	if err != nil {
		return nil, goerr.Wrap(ErrReadFailed, "failed to decode snapshot", goerr.V("url", s.url), goerr.V("error", err.Error()))
	}
	return img, nil
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
