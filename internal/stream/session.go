package stream

import (
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facecam/internal/facematch"
)

// Mode selects what the loop does with processed frames.
type Mode string

const (
	// ModeRecognize detects faces and matches them against the gallery.
	ModeRecognize Mode = "recognize"
	// ModeDetect draws detected faces without matching.
	ModeDetect Mode = "detect"
	// ModeCameraTest only shows frames and reports the frame rate.
	ModeCameraTest Mode = "camera-test"
)

// Session is the mutable state of one stream run. It is owned by the loop
// goroutine; other goroutines only see Status snapshots.
type Session struct {
	ID         string
	Mode       Mode
	StartedAt  time.Time
	FrameCount int
	Processed  int
	Paused     bool
	Faces      []facematch.TrackedFace // last processed results, full frame coordinates
	KnownCount int                     // identities in the gallery
	FPS        float64

	fpsMark      time.Time
	fpsMarkFrame int
}

// NewSession starts a session in the given mode.
func NewSession(mode Mode, knownCount int, now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Mode:       mode,
		StartedAt:  now,
		KnownCount: knownCount,
		fpsMark:    now,
	}
}

// ShouldProcess reports whether the current frame is one of every n.
func (s *Session) ShouldProcess(n int) bool {
	return n <= 1 || s.FrameCount%n == 0
}

// updateFPS recomputes the frame rate every interval frames and reports whether it did.
func (s *Session) updateFPS(now time.Time, interval int) bool {
	frames := s.FrameCount - s.fpsMarkFrame
	if frames < interval {
		return false
	}
	if elapsed := now.Sub(s.fpsMark).Seconds(); elapsed > 0 {
		s.FPS = float64(frames) / elapsed
	}
	s.fpsMark = now
	s.fpsMarkFrame = s.FrameCount
	return true
}

// Status is a read-only snapshot of a session.
type Status struct {
	SessionID  string                  `json:"session_id"`
	Mode       Mode                    `json:"mode"`
	StartedAt  time.Time               `json:"started_at"`
	Frame      int                     `json:"frame"`
	Processed  int                     `json:"processed"`
	Paused     bool                    `json:"paused"`
	FaceCount  int                     `json:"face_count"`
	KnownCount int                     `json:"known_people"`
	FPS        float64                 `json:"fps"`
	Faces      []facematch.TrackedFace `json:"faces"`
}

// Status returns a snapshot safe to hand to other goroutines.
func (s *Session) Status() Status {
	faces := make([]facematch.TrackedFace, len(s.Faces))
	copy(faces, s.Faces)
	return Status{
		SessionID:  s.ID,
		Mode:       s.Mode,
		StartedAt:  s.StartedAt,
		Frame:      s.FrameCount,
		Processed:  s.Processed,
		Paused:     s.Paused,
		FaceCount:  len(s.Faces),
		KnownCount: s.KnownCount,
		FPS:        s.FPS,
		Faces:      faces,
	}
}
