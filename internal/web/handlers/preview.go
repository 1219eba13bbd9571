package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/stream"
)

// PreviewHandler serves the live frames of a running stream and forwards
// control actions to its loop.
type PreviewHandler struct {
	frames       *FrameStore
	commands     chan<- stream.Command
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewPreviewHandler creates a preview handler. commands may be nil when no
// loop listens.
func NewPreviewHandler(frames *FrameStore, commands chan<- stream.Command, logger *slog.Logger) *PreviewHandler {
	return &PreviewHandler{
		frames:       frames,
		commands:     commands,
		pollInterval: constants.MJPEGPollIntervalMs * time.Millisecond,
		logger:       logger,
	}
}

// StatusResponse is the live stream status.
type StatusResponse struct {
	Live bool `json:"live"`
	stream.Status
}

// Status returns the status of the last published frame.
func (h *PreviewHandler) Status(w http.ResponseWriter, r *http.Request) {
	_, status, seq := h.frames.Latest()
	respondJSON(w, http.StatusOK, StatusResponse{Live: seq > 0, Status: status})
}

// Snapshot returns the last frame as JPEG.
func (h *PreviewHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	data, _, seq := h.frames.Latest()
	if seq == 0 {
		respondError(w, http.StatusServiceUnavailable, "no frame available yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Stream serves frames as multipart/x-mixed-replace until the client goes away.
func (h *PreviewHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+constants.MJPEGBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("preview client connected", "remote", sanitizeForLog(r.RemoteAddr))
	defer h.logger.Debug("preview client disconnected", "remote", sanitizeForLog(r.RemoteAddr))

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		if data, _, seq := h.frames.Latest(); seq != last {
			if err := writeMJPEGPart(w, data); err != nil {
				return
			}
			flusher.Flush()
			last = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeMJPEGPart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		constants.MJPEGBoundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// Control forwards pause, quit and screenshot actions to the loop.
func (h *PreviewHandler) Control(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	cmd := stream.ParseCommand(action)
	if cmd == stream.CmdNone || len(action) == 1 {
		respondError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if h.commands == nil {
		respondError(w, http.StatusServiceUnavailable, "no stream is running")
		return
	}

	select {
	case h.commands <- cmd:
	default:
		respondError(w, http.StatusServiceUnavailable, "control queue is full")
		return
	}

	h.logger.Info("control action received", "action", cmd.String(), "remote", sanitizeForLog(r.RemoteAddr))
	respondJSON(w, http.StatusAccepted, map[string]string{"action": cmd.String()})
}
