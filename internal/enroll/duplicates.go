package enroll

import (
	"image"
	"math/bits"

	"github.com/kozaktomas/facecam/internal/embedding"
	"golang.org/x/image/draw"
)

// Duplicate is a pair of training images whose pixels are nearly identical.
// Across identities this usually means a mislabeled photo; within one
// identity it gives that photo extra weight in the mean.
type Duplicate struct {
	Identity      string `json:"identity"`
	Image         string `json:"image"`
	OtherIdentity string `json:"other_identity"`
	OtherImage    string `json:"other_image"`
	Distance      int    `json:"distance"`
}

// CrossIdentity reports whether the two images are enrolled under different labels.
func (d Duplicate) CrossIdentity() bool {
	return d.Identity != d.OtherIdentity
}

// differenceHash computes a 64-bit dHash: the image is shrunk to 9x8 grey
// pixels and each bit records whether a pixel is brighter than its right
// neighbour.
func differenceHash(data []byte) (uint64, error) {
	img, err := embedding.DecodeImage(data)
	if err != nil {
		return 0, err
	}
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash, nil
}

type hashedImage struct {
	identity string
	image    string
	hash     uint64
}

// findDuplicates compares every pair of hashes and returns those within
// maxDistance, in input order.
func findDuplicates(images []hashedImage, maxDistance int) []Duplicate {
	var out []Duplicate
	for i := range images {
		for j := i + 1; j < len(images); j++ {
			d := bits.OnesCount64(images[i].hash ^ images[j].hash)
			if d > maxDistance {
				continue
			}
			out = append(out, Duplicate{
				Identity:      images[i].identity,
				Image:         images[i].image,
				OtherIdentity: images[j].identity,
				OtherImage:    images[j].image,
				Distance:      d,
			})
		}
	}
	return out
}
