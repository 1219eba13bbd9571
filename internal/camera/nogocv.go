//go:build !gocv

package camera

import "github.com/m-mizutani/goerr/v2"

// LocalAvailable reports whether this build can open local video devices.
// Build with -tags gocv to enable OpenCV capture and display.
const LocalAvailable = false

// LocalOpener returns an opener that always fails; local capture needs the gocv build tag.
func LocalOpener() Opener {
	return OpenerFunc(func(index int, _ Settings) (Source, error) {
		return nil, goerr.Wrap(ErrNotSupported, "local capture requires -tags gocv", goerr.V("index", index))
	})
}

// NewWindow is unavailable without the gocv build tag.
func NewWindow(string) (Display, error) {
	return nil, goerr.Wrap(ErrNotSupported, "display window requires -tags gocv")
}
