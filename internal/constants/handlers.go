// Package constants provides shared constants used across the codebase.
package constants

// Preview server constants
const (
	// MaxUploadBytes is the maximum size of an image posted to the match endpoint
	MaxUploadBytes = 20 << 20

	// MJPEGBoundary separates frames in the multipart preview stream
	MJPEGBoundary = "facecamframe"

	// MJPEGPollIntervalMs is how often the preview stream checks for a new frame
	MJPEGPollIntervalMs = 50
)

// Control channel constants
const (
	// ControlChannelBuffer is the buffer size for the stream command channel
	ControlChannelBuffer = 16
)
