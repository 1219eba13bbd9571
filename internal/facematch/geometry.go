package facematch

import "github.com/kozaktomas/facecam/internal/embedding"

// ComputeIoU calculates Intersection over Union between two boxes in the same
// coordinate system.
func ComputeIoU(a, b embedding.BBox) float64 {
	// Calculate intersection.
	x1 := max(a.Left, b.Left)
	y1 := max(a.Top, b.Top)
	x2 := min(a.Right, b.Right)
	y2 := min(a.Bottom, b.Bottom)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := float64((x2 - x1) * (y2 - y1))

	// Calculate union.
	area1 := float64((a.Right - a.Left) * (a.Bottom - a.Top))
	area2 := float64((b.Right - b.Left) * (b.Bottom - b.Top))
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RelativeBox converts a pixel box to relative [x, y, w, h] coordinates (0-1).
// Returns nil for non-positive image dimensions.
func RelativeBox(b embedding.BBox, width, height int) []float64 {
	if width <= 0 || height <= 0 {
		return nil
	}
	return []float64{
		float64(b.Left) / float64(width),
		float64(b.Top) / float64(height),
		float64(b.Right-b.Left) / float64(width),
		float64(b.Bottom-b.Top) / float64(height),
	}
}

// ScaleBoxes maps boxes found on a downscaled frame back to the full frame.
// scale is the factor the frame was reduced by, e.g. 0.25.
func ScaleBoxes(boxes []embedding.BBox, scale float64) []embedding.BBox {
	if scale <= 0 {
		return boxes
	}
	out := make([]embedding.BBox, len(boxes))
	for i, b := range boxes {
		out[i] = b.Scale(1 / scale)
	}
	return out
}
