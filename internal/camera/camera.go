// Package camera opens video sources and displays frames.
package camera

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrDeviceUnavailable means no probed device opened and produced a frame.
	ErrDeviceUnavailable = errors.New("no working camera found")
	// ErrReadFailed is returned by Source.Read when no frame could be grabbed.
	ErrReadFailed = errors.New("failed to read frame")
	// ErrNotSupported is returned when the binary was built without a backend.
	ErrNotSupported = errors.New("camera backend not available in this build")
)

// Settings are the capture properties requested from a device.
type Settings struct {
	Width      int
	Height     int
	FPS        int
	BufferSize int
}

// Source is an open video device.
type Source interface {
	// Read returns the next frame. It may block until one is available.
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens the device with the given index.
type Opener interface {
	Open(index int, s Settings) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(index int, s Settings) (Source, error)

func (f OpenerFunc) Open(index int, s Settings) (Source, error) {
	return f(index, s)
}

// Open probes indices in order and returns the first device that opens and
// delivers a test frame, together with its index. Devices that open but fail
// the test read are closed before moving on.
func Open(ctx context.Context, opener Opener, indices []int, s Settings) (Source, int, error) {
	logger := logging.From(ctx)
	logger.Info("initializing camera", "indices", indices)

	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, -1, goerr.Wrap(err, "camera probing cancelled")
		}

		src, err := opener.Open(idx, s)
		if err != nil {
			logger.Debug("camera did not open", "index", idx, "error", err)
			continue
		}
		if _, err := src.Read(ctx); err != nil {
			logger.Debug("camera opened but test frame failed", "index", idx, "error", err)
			closeQuietly(logger, src, idx)
			continue
		}

		logger.Info("camera successfully opened", "index", idx,
			"width", s.Width, "height", s.Height, "fps", s.FPS)
		return src, idx, nil
	}

	return nil, -1, goerr.Wrap(ErrDeviceUnavailable, "no device produced a frame", goerr.V("tried", indices))
}

func closeQuietly(logger *slog.Logger, src Source, idx int) {
	if err := src.Close(); err != nil {
		logger.Debug("failed to release camera", "index", idx, "error", err)
	}
}

// Display shows frames and reports key presses.
type Display interface {
	Show(img image.Image) error
	// PollKey waits up to 1ms and returns the pressed key, or -1.
	PollKey() int
	Close() error
}
