//go:build gocv

package camera

import (
	"context"
	"image"

	"github.com/m-mizutani/goerr/v2"
	"gocv.io/x/gocv"
)

// LocalAvailable reports whether this build can open local video devices.
const LocalAvailable = true

// deviceSource reads frames from a local device through OpenCV.
type deviceSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// LocalOpener opens local video devices through OpenCV.
func LocalOpener() Opener {
	return OpenerFunc(openDevice)
}

func openDevice(index int, s Settings) (Source, error) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open video capture", goerr.V("index", index))
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, goerr.New("video capture is not opened", goerr.V("index", index))
	}

	if s.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.Width))
	}
	if s.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.Height))
	}
	if s.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.FPS))
	}
	if s.BufferSize > 0 {
		capture.Set(gocv.VideoCaptureBufferSize, float64(s.BufferSize))
	}

	return &deviceSource{capture: capture, mat: gocv.NewMat()}, nil
}

func (d *deviceSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, ErrReadFailed
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, goerr.Wrap(ErrReadFailed, "failed to convert frame", goerr.V("error", err.Error()))
	}
	return img, nil
}

func (d *deviceSource) Close() error {
	d.mat.Close()
	return d.capture.Close()
}

// window is an OpenCV highgui window.
type window struct {
	w *gocv.Window
}

// NewWindow opens an OpenCV window with the given title.
func NewWindow(title string) (Display, error) {
	return &window{w: gocv.NewWindow(title)}, nil
}

func (w *window) Show(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return goerr.Wrap(err, "failed to convert frame for display")
	}
	defer mat.Close()
	w.w.IMShow(mat)
	return nil
}

func (w *window) PollKey() int {
	key := w.w.WaitKey(1)
	if key < 0 {
		return -1
	}
	return key & 0xFF
}

func (w *window) Close() error {
	return w.w.Close()
}
