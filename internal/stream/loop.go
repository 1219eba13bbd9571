// Package stream runs the live frame loop: read, detect, match, draw, show.
package stream

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/kozaktomas/facecam/internal/camera"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

const pausedSleep = 30 * time.Millisecond

// FrameSink receives every rendered frame, e.g. the preview server.
type FrameSink interface {
	Publish(frame image.Image, status Status)
}

// Settings control frame processing.
type Settings struct {
	Mode          Mode
	ProcessEveryN int
	Scale         float64
	ScreenshotDir string
	IoUThreshold  float64
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings(mode Mode) Settings {
	return Settings{
		Mode:          mode,
		ProcessEveryN: constants.DefaultProcessEveryN,
		Scale:         constants.DefaultFrameScale,
		ScreenshotDir: ".",
		IoUThreshold:  constants.IoUThreshold,
	}
}

// Loop is the single-goroutine frame loop.
type Loop struct {
	src      camera.Source
	provider embedding.Provider
	matcher  *facematch.Matcher
	display  camera.Display
	sink     FrameSink
	commands <-chan Command
	settings Settings
	session  *Session
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	lastSize   image.Point
	screenshot bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithProvider sets the face detector. Required in recognize and detect modes.
func WithProvider(p embedding.Provider) LoopOption {
	return func(l *Loop) { l.provider = p }
}

// WithMatcher sets the matcher. Required in recognize mode.
func WithMatcher(m *facematch.Matcher) LoopOption {
	return func(l *Loop) { l.matcher = m }
}

func WithDisplay(d camera.Display) LoopOption {
	return func(l *Loop) { l.display = d }
}

func WithSink(s FrameSink) LoopOption {
	return func(l *Loop) { l.sink = s }
}

// WithCommands sets the channel the loop polls once per frame.
func WithCommands(ch <-chan Command) LoopOption {
	return func(l *Loop) { l.commands = ch }
}

func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// WithClock replaces time.Now and the sleep between retries. Used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration)) LoopOption {
	return func(l *Loop) {
		l.now = now
		l.sleep = sleep
	}
}

// NewLoop creates a loop reading from src.
func NewLoop(src camera.Source, settings Settings, opts ...LoopOption) (*Loop, error) {
	l := &Loop{
		src:      src,
		settings: settings,
		logger:   logging.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
		lastSize: image.Pt(constants.DefaultFrameWidth, constants.DefaultFrameHeight),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.settings.ProcessEveryN < 1 {
		l.settings.ProcessEveryN = 1
	}
	if l.settings.Scale <= 0 || l.settings.Scale > 1 {
		l.settings.Scale = 1
	}
	switch l.settings.Mode {
	case ModeRecognize:
		if l.provider == nil || l.matcher == nil {
			return nil, goerr.New("recognize mode needs a provider and a matcher")
		}
	case ModeDetect:
		if l.provider == nil {
			return nil, goerr.New("detect mode needs a provider")
		}
	case ModeCameraTest:
	default:
		return nil, goerr.New("unknown stream mode", goerr.V("mode", l.settings.Mode))
	}

	known := 0
	if l.matcher != nil {
		known = l.matcher.Gallery().IdentityCount()
	}
	l.session = NewSession(l.settings.Mode, known, l.now())
	return l, nil
}

// Session returns the loop's session. Only safe to read from the loop goroutine
// or after Run returns.
func (l *Loop) Session() *Session { return l.session }

// Run processes frames until a quit command or ctx is cancelled. Cancellation
// is a clean exit and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("starting video stream", "mode", l.settings.Mode, "session", l.session.ID,
		"every_n", l.settings.ProcessEveryN, "scale", l.settings.Scale)

	for {
		more, err := l.Step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}
		if !more {
			break
		}
	}

	l.logger.Info("stream stopped", "frames", l.session.FrameCount, "processed", l.session.Processed)
	return nil
}

// Step handles pending commands and at most one frame. It returns false once
// a quit command was received.
func (l *Loop) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !l.handleCommands() {
		return false, nil
	}

	if l.session.Paused {
		l.present(PausedFrame(l.lastSize.X, l.lastSize.Y))
		l.sleep(ctx, pausedSleep)
		return true, nil
	}

	frame, err := l.src.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		l.logger.Warn("failed to read frame, retrying", "error", err)
		l.sleep(ctx, constants.ReadRetryDelayMs*time.Millisecond)
		return true, nil
	}
	l.lastSize = frame.Bounds().Size()
	l.session.FrameCount++

	if l.settings.Mode == ModeCameraTest {
		if l.session.updateFPS(l.now(), constants.FPSReportInterval) {
			l.logger.Info("camera fps", "frame", l.session.FrameCount, "fps", l.session.FPS)
		}
	} else if l.session.ShouldProcess(l.settings.ProcessEveryN) {
		if err := l.process(ctx, frame); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			l.logger.Warn("failed to process frame", "frame", l.session.FrameCount, "error", err)
		}
	}

	rendered := Render(frame, l.session)
	l.present(rendered)

	if l.screenshot {
		l.screenshot = false
		name := ScreenshotName(l.settings.Mode, l.session.FrameCount, l.now())
		path, err := SaveScreenshot(l.settings.ScreenshotDir, name, rendered)
		if err != nil {
			l.logger.Error("failed to save screenshot", "error", err)
		} else {
			l.logger.Info("screenshot saved", "path", path)
		}
	}
	return true, nil
}

// handleCommands drains the command channel and the display's key buffer
// without blocking. It returns false on quit.
func (l *Loop) handleCommands() bool {
	if l.display != nil {
		if !l.apply(ParseKey(l.display.PollKey())) {
			return false
		}
	}
	if l.commands == nil {
		return true
	}
	for {
		select {
		case cmd, ok := <-l.commands:
			if !ok {
				l.commands = nil
				return true
			}
			if !l.apply(cmd) {
				return false
			}
		default:
			return true
		}
	}
}

func (l *Loop) apply(cmd Command) bool {
	switch cmd {
	case CmdQuit:
		l.logger.Info("quit requested")
		return false
	case CmdTogglePause:
		l.session.Paused = !l.session.Paused
		if l.session.Paused {
			l.logger.Info("paused")
		} else {
			l.logger.Info("resumed")
		}
	case CmdScreenshot:
		if !l.session.Paused {
			l.screenshot = true
		}
	}
	return true
}

// process detects faces on a downscaled copy of frame, maps the boxes back to
// full resolution and, in recognize mode, matches them.
func (l *Loop) process(ctx context.Context, frame image.Image) error {
	small := embedding.Downscale(frame, l.settings.Scale)
	faces, err := embedding.DetectImage(ctx, l.provider, small)
	if err != nil {
		return err
	}

	boxes := make([]embedding.BBox, len(faces))
	for i, f := range faces {
		boxes[i] = f.Box
	}
	boxes = facematch.ScaleBoxes(boxes, l.settings.Scale)

	var results []facematch.Result
	if l.settings.Mode == ModeRecognize {
		results, err = l.matcher.MatchFaces(faces)
		if err != nil {
			return err
		}
	}

	tracked, lost := facematch.Track(l.session.Faces, boxes, results, l.settings.IoUThreshold)
	l.session.Faces = tracked
	l.session.Processed++
	l.logEvents(tracked)
	l.logEvents(lost)
	return nil
}

func (l *Loop) logEvents(faces []facematch.TrackedFace) {
	for _, f := range faces {
		if f.Action == facematch.ActionSame {
			continue
		}
		switch {
		case f.Action == facematch.ActionLost:
			l.logger.Info("face lost", "frame", l.session.FrameCount, "label", f.Result.Label)
		case l.settings.Mode == ModeDetect:
			l.logger.Debug("face detected", "frame", l.session.FrameCount, "box", f.Box)
		case f.Result.Known:
			l.logger.Info("recognized", "label", f.Result.Label,
				"confidence", f.Result.Confidence, "distance", f.Result.Distance)
		default:
			l.logger.Info("unknown face", "frame", l.session.FrameCount)
		}
	}
}

func (l *Loop) present(img *image.RGBA) {
	if l.display != nil {
		if err := l.display.Show(img); err != nil {
			l.logger.Debug("failed to show frame", "error", err)
		}
	}
	if l.sink != nil {
		l.sink.Publish(img, l.session.Status())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
