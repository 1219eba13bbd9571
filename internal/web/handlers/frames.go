package handlers

import (
	"image"
	"log/slog"
	"sync"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/stream"
)

// FrameStore keeps the latest rendered frame as JPEG. It implements
// stream.FrameSink; the loop publishes, HTTP handlers read.
type FrameStore struct {
	mu     sync.RWMutex
	jpeg   []byte
	status stream.Status
	seq    uint64
	logger *slog.Logger
}

// NewFrameStore creates an empty frame store.
func NewFrameStore(logger *slog.Logger) *FrameStore {
	return &FrameStore{logger: logger}
}

// Publish encodes frame and replaces the stored one.
func (f *FrameStore) Publish(frame image.Image, status stream.Status) {
	data, err := embedding.EncodeJPEG(frame, constants.ScreenshotJPEGQuality)
	if err != nil {
		f.logger.Debug("failed to encode preview frame", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.jpeg = data
	f.status = status
	f.seq++
}

// Latest returns the last frame, its status and a sequence number that
// increases with every publish. seq is 0 before the first frame.
func (f *FrameStore) Latest() ([]byte, stream.Status, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.jpeg, f.status, f.seq
}
