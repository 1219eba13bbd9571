package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facecam/internal/embedding"
)

func TestMatchHandler_Gallery(t *testing.T) {
	h := NewMatchHandler(testMatcher(t), &fakeProvider{}, quietLogger())
	recorder := httptest.NewRecorder()

	h.Gallery(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["encodings"] != float64(2) || result["people"] != float64(2) {
		t.Errorf("unexpected gallery summary %v", result)
	}
	if result["tolerance"] != 0.6 || result["indexed"] != false {
		t.Errorf("unexpected matcher settings %v", result)
	}
}

func TestMatchHandler_NoGallery(t *testing.T) {
	h := NewMatchHandler(nil, nil, quietLogger())

	recorder := httptest.NewRecorder()
	h.Gallery(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil))
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)

	recorder = httptest.NewRecorder()
	h.Match(recorder, multipartRequest(t, "/api/v1/match", "image", "a.jpg", testJPEG(t, 8, 8)))
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	assertJSONError(t, recorder, "no gallery loaded")
}

func TestMatchHandler_Match(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.Face{
		{Box: embedding.BBox{Top: 0, Right: 50, Bottom: 50, Left: 0}, Embedding: embedding.Vector{0, 0}, Score: 0.99},
		{Box: embedding.BBox{Top: 50, Right: 100, Bottom: 100, Left: 50}, Embedding: embedding.Vector{0.5, 5}, Score: 0.8},
	}}
	h := NewMatchHandler(testMatcher(t), provider, quietLogger())
	recorder := httptest.NewRecorder()

	h.Match(recorder, multipartRequest(t, "/api/v1/match", "image", "group.jpg", testJPEG(t, 100, 100)))

	assertStatusCode(t, recorder, http.StatusOK)
	var result MatchResponse
	parseJSONResponse(t, recorder, &result)

	if result.File != "group.jpg" || result.Width != 100 || result.Height != 100 {
		t.Errorf("unexpected image info %+v", result)
	}
	if result.FacesCount != 2 || len(result.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(result.Faces))
	}
	if f := result.Faces[0]; f.Result.Label != "alice" || f.Result.Confidence != 1 || !f.Result.Known {
		t.Errorf("first face = %+v, want alice", f.Result)
	}
	if f := result.Faces[1]; f.Result.Label != "Unknown" || f.Result.Known {
		t.Errorf("second face = %+v, want Unknown", f.Result)
	}
	if rel := result.Faces[1].BoxRel; len(rel) != 4 || rel[0] != 0.5 {
		t.Errorf("unexpected relative box %v", rel)
	}
}

func TestMatchHandler_MatchErrors(t *testing.T) {
	tests := []struct {
		name        string
		provider    *fakeProvider
		request     func(t *testing.T) *http.Request
		expectCode  int
		expectError string
	}{
		{
			name:     "not multipart",
			provider: &fakeProvider{},
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/v1/match", nil)
			},
			expectCode:  http.StatusBadRequest,
			expectError: "failed to parse multipart form",
		},
		{
			name:     "wrong field",
			provider: &fakeProvider{},
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/match", "file", "a.jpg", testJPEG(t, 8, 8))
			},
			expectCode:  http.StatusBadRequest,
			expectError: "image file is required",
		},
		{
			name:     "not an image",
			provider: &fakeProvider{},
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/match", "image", "a.txt", []byte("hello"))
			},
			expectCode:  http.StatusBadRequest,
			expectError: "unsupported image format",
		},
		{
			name:     "provider failure",
			provider: &fakeProvider{err: errors.New("server down")},
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/match", "image", "a.jpg", testJPEG(t, 8, 8))
			},
			expectCode:  http.StatusBadGateway,
			expectError: "face detection failed",
		},
		{
			name: "dimension mismatch",
			provider: &fakeProvider{faces: []embedding.Face{
				{Embedding: embedding.Vector{0, 0, 0}},
			}},
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/match", "image", "a.jpg", testJPEG(t, 8, 8))
			},
			expectCode:  http.StatusUnprocessableEntity,
			expectError: "embedding dimension does not match gallery",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMatchHandler(testMatcher(t), tc.provider, quietLogger())
			recorder := httptest.NewRecorder()

			h.Match(recorder, tc.request(t))

			assertStatusCode(t, recorder, tc.expectCode)
			assertJSONError(t, recorder, tc.expectError)
		})
	}
}
