package facematch

import "github.com/kozaktomas/facecam/internal/embedding"

// TrackAction describes how a face relates to the faces of the previous processed frame
type TrackAction string

const (
	ActionAppeared TrackAction = "appeared" // No overlapping face on the previous frame
	ActionChanged  TrackAction = "changed"  // Overlaps a face that carried a different label
	ActionSame     TrackAction = "same"     // Overlaps a face with the same label
	ActionLost     TrackAction = "lost"     // Previous face that no new face continues
)

// TrackedFace is a matched face together with its tracking outcome.
type TrackedFace struct {
	Box    embedding.BBox `json:"box"`
	Result Result         `json:"result"`
	Action TrackAction    `json:"action"`
}

// FaceMatch describes one face of a still image and its match.
type FaceMatch struct {
	Index  int            `json:"face_index"`
	Box    embedding.BBox `json:"bbox"`
	BoxRel []float64      `json:"bbox_rel,omitempty"`
	Score  float64        `json:"det_score"`
	Result Result         `json:"result"`
}

// DescribeFaces pairs faces with their results and adds boxes relative to
// an image of the given size.
func DescribeFaces(faces []embedding.Face, results []Result, width, height int) []FaceMatch {
	out := make([]FaceMatch, len(faces))
	for i, f := range faces {
		res := Unknown()
		if i < len(results) {
			res = results[i]
		}
		out[i] = FaceMatch{
			Index:  i,
			Box:    f.Box,
			BoxRel: RelativeBox(f.Box, width, height),
			Score:  f.Score,
			Result: res,
		}
	}
	return out
}
