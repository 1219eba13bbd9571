package embedding

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/m-mizutani/goerr/v2"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is used when frames are sent to a Provider.
const DefaultJPEGQuality = 90

// EncodeJPEG encodes img as JPEG at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, goerr.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes JPEG, PNG, GIF or BMP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// DetectImage JPEG-encodes img and runs it through p.
func DetectImage(ctx context.Context, p Provider, img image.Image) ([]Face, error) {
	data, err := EncodeJPEG(img, DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	return p.DetectAndEncode(ctx, data)
}

// Downscale resizes img by factor (0 < factor <= 1). A factor of 1 returns img unchanged.
func Downscale(img image.Image, factor float64) image.Image {
	if factor >= 1 || factor <= 0 {
		return img
	}
	bounds := img.Bounds()
	w := max(1, int(float64(bounds.Dx())*factor))
	h := max(1, int(float64(bounds.Dy())*factor))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
