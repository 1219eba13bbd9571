// Package embedding defines the face detection and encoding contract and an
// HTTP client for a face embedding server.
package embedding

import (
	"context"
	"image"
	"math"
)

// Vector is a face embedding. Vectors returned by a Provider are owned by the
// caller and must not be modified once stored in a gallery.
type Vector []float32

// BBox is a face location in pixel coordinates of the image it was detected in.
type BBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Scale multiplies every coordinate by factor, e.g. 1/0.25 = 4 to map a box
// found on a downscaled frame back to the full frame.
func (b BBox) Scale(factor float64) BBox {
	return BBox{
		Top:    int(math.Round(float64(b.Top) * factor)),
		Right:  int(math.Round(float64(b.Right) * factor)),
		Bottom: int(math.Round(float64(b.Bottom) * factor)),
		Left:   int(math.Round(float64(b.Left) * factor)),
	}
}

// Rect returns the box as an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Face is one detected face with its embedding.
type Face struct {
	Box       BBox    `json:"box"`
	Embedding Vector  `json:"-"`
	Score     float64 `json:"score"`
}

// Provider detects faces in an encoded image and returns one embedding per
// face, in detection order. An image without faces yields an empty slice and
// no error.
type Provider interface {
	DetectAndEncode(ctx context.Context, imageData []byte) ([]Face, error)
}

// CornersToBBox converts [x1, y1, x2, y2] pixel corners to a BBox.
func CornersToBBox(corners []float64) BBox {
	if len(corners) != 4 {
		return BBox{}
	}
	return BBox{
		Top:    int(math.Round(corners[1])),
		Right:  int(math.Round(corners[2])),
		Bottom: int(math.Round(corners[3])),
		Left:   int(math.Round(corners[0])),
	}
}
