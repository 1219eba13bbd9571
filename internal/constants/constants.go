// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// UnknownLabel is shown for faces with no reference within tolerance
	UnknownLabel = "Unknown"

	// IoUThreshold is the minimum Intersection over Union for a face to be
	// treated as the same face seen on the previous processed frame
	IoUThreshold = 0.3
)

// Stream constants
const (
	// DefaultProcessEveryN runs detection on every Nth frame only
	DefaultProcessEveryN = 2

	// DefaultFrameScale is the downscale factor applied to frames before detection
	DefaultFrameScale = 0.25

	// ReadRetryDelayMs is how long the loop waits after a failed frame read
	ReadRetryDelayMs = 100

	// FPSReportInterval is the number of frames between FPS log lines in camera test mode
	FPSReportInterval = 30

	// ScreenshotJPEGQuality is the JPEG quality used for screenshots and preview frames
	ScreenshotJPEGQuality = 90
)

// Camera constants
const (
	// DefaultFrameWidth is the requested capture width
	DefaultFrameWidth = 640

	// DefaultFrameHeight is the requested capture height
	DefaultFrameHeight = 480
)

// Enrollment constants
const (
	// DuplicateHashDistance is the max Hamming distance between difference
	// hashes of two training images reported as near-duplicates
	DuplicateHashDistance = 4
)

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// DefaultHNSWCandidates is how many neighbours are re-ranked exactly after an HNSW lookup
	DefaultHNSWCandidates = 16
)
