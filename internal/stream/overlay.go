package stream

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/kozaktomas/facecam/internal/facematch"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorKnown   = color.RGBA{0, 255, 0, 255}
	colorUnknown = color.RGBA{255, 0, 0, 255}
	colorDetect  = color.RGBA{255, 255, 0, 255}
	colorText    = color.RGBA{255, 255, 255, 255}
	colorBlack   = color.RGBA{0, 0, 0, 255}
)

const (
	boxLineWidth = 2
	labelHeight  = 20
	helpText     = "Press 'q'=quit, 'p'=pause, 's'=screenshot"
	pausedText   = "PAUSED - Press 'p' to resume"
)

// toRGBA copies img into a new RGBA image whose bounds start at (0, 0).
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < 0 || y >= bounds.Dy() {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= 0 && x < bounds.Dx() {
			dst.SetRGBA(x, y, c)
		}
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < 0 || x >= bounds.Dx() {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= 0 && y < bounds.Dy() {
			dst.SetRGBA(x, y, c)
		}
	}
}

func drawBox(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	for w := range boxLineWidth {
		drawHLine(dst, r.Min.X, r.Max.X, r.Min.Y+w, c)
		drawHLine(dst, r.Min.X, r.Max.X, r.Max.Y-w, c)
		drawVLine(dst, r.Min.Y, r.Max.Y, r.Min.X+w, c)
		drawVLine(dst, r.Min.Y, r.Max.Y, r.Max.X-w, c)
	}
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawText writes s with its baseline at (x, y).
func drawText(dst *image.RGBA, x, y int, s string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// FaceLabel is the caption drawn under a face box.
func FaceLabel(r facematch.Result) string {
	if !r.Known {
		return facematch.DisplayLabel(r.Label)
	}
	return fmt.Sprintf("%s (%.2f)", facematch.DisplayLabel(r.Label), r.Confidence)
}

func faceColor(mode Mode, r facematch.Result) color.RGBA {
	switch {
	case mode == ModeDetect:
		return colorDetect
	case r.Known:
		return colorKnown
	default:
		return colorUnknown
	}
}

// Render draws the session's faces and status lines over a copy of frame.
func Render(frame image.Image, s *Session) *image.RGBA {
	dst := toRGBA(frame)

	for _, f := range s.Faces {
		r := f.Box.Rect()
		c := faceColor(s.Mode, f.Result)
		drawBox(dst, r, c)

		if s.Mode == ModeDetect {
			continue
		}
		// Filled label bar below the box.
		bar := image.Rect(r.Min.X, r.Max.Y-labelHeight, r.Max.X, r.Max.Y)
		fillRect(dst, bar, c)
		drawText(dst, r.Min.X+6, r.Max.Y-6, FaceLabel(f.Result), colorBlack)
	}

	for i, line := range statusLines(s) {
		drawText(dst, 10, 25+i*20, line, colorDetect)
	}
	drawText(dst, 10, dst.Bounds().Dy()-10, helpText, colorText)
	return dst
}

func statusLines(s *Session) []string {
	switch s.Mode {
	case ModeCameraTest:
		return []string{
			fmt.Sprintf("Frame: %d", s.FrameCount),
			fmt.Sprintf("FPS: %.1f", s.FPS),
		}
	case ModeDetect:
		return []string{fmt.Sprintf("Frame: %d | Faces: %d", s.FrameCount, len(s.Faces))}
	default:
		return []string{
			fmt.Sprintf("Frame: %d | Faces: %d", s.FrameCount, len(s.Faces)),
			fmt.Sprintf("Known: %d people", s.KnownCount),
		}
	}
}

// PausedFrame returns a black frame of the given size with the pause notice.
func PausedFrame(width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(dst, dst.Bounds(), colorBlack)
	drawText(dst, max(10, width/2-len(pausedText)*7/2), height/2, pausedText, colorText)
	return dst
}
