package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/gallery"
)

// MatchHandler matches uploaded still images against the loaded gallery.
type MatchHandler struct {
	matcher  *facematch.Matcher
	provider embedding.Provider
	logger   *slog.Logger
}

// NewMatchHandler creates a match handler. A nil matcher disables the
// gallery endpoints.
func NewMatchHandler(matcher *facematch.Matcher, provider embedding.Provider, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{matcher: matcher, provider: provider, logger: logger}
}

// GalleryResponse describes the loaded gallery.
type GalleryResponse struct {
	gallery.Summary
	Tolerance float64 `json:"tolerance"`
	Indexed   bool    `json:"indexed"`
}

// MatchResponse is the result of matching one uploaded image.
type MatchResponse struct {
	File       string                `json:"file"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	FacesCount int                   `json:"faces_count"`
	Faces      []facematch.FaceMatch `json:"faces"`
}

// Gallery returns the gallery summary.
func (h *MatchHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		respondError(w, http.StatusServiceUnavailable, "no gallery loaded")
		return
	}
	respondJSON(w, http.StatusOK, GalleryResponse{
		Summary:   h.matcher.Gallery().Summary(),
		Tolerance: h.matcher.Tolerance(),
		Indexed:   h.matcher.UsesIndex(),
	})
}

// Match detects faces in the uploaded "image" form file and matches each one.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil || h.provider == nil {
		respondError(w, http.StatusServiceUnavailable, "no gallery loaded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := r.ParseMultipartForm(constants.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	img, err := embedding.DecodeImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image format")
		return
	}

	faces, err := h.provider.DetectAndEncode(r.Context(), data)
	if err != nil {
		h.logger.Error("face detection failed", "file", sanitizeForLog(header.Filename), "error", err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	results, err := h.matcher.MatchFaces(faces)
	if err != nil {
		if errors.Is(err, facematch.ErrDimensionMismatch) {
			respondError(w, http.StatusUnprocessableEntity, "embedding dimension does not match gallery")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to match faces")
		return
	}

	bounds := img.Bounds()
	respondJSON(w, http.StatusOK, MatchResponse{
		File:       header.Filename,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		FacesCount: len(faces),
		Faces:      facematch.DescribeFaces(faces, results, bounds.Dx(), bounds.Dy()),
	})
}
