package stream

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/m-mizutani/goerr/v2"
)

// ScreenshotName returns the file name for a screenshot taken now. Recognition
// and detection screenshots are named by unix time, camera tests by frame.
func ScreenshotName(mode Mode, frame int, now time.Time) string {
	if mode == ModeCameraTest {
		return fmt.Sprintf("screenshot_%d.jpg", frame)
	}
	return fmt.Sprintf("recognition_screenshot_%d.jpg", now.Unix())
}

// SaveScreenshot writes img as JPEG into dir and returns the full path.
func SaveScreenshot(dir, name string, img image.Image) (string, error) {
	data, err := embedding.EncodeJPEG(img, constants.ScreenshotJPEGQuality)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create screenshot directory", goerr.V("dir", dir))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", goerr.Wrap(err, "failed to write screenshot", goerr.V("path", path))
	}
	return path, nil
}
