package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facecam/internal/camera"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/gallery"
)

type fakeSource struct {
	width, height int
	failures      int // number of reads that fail before frames are returned
	reads         int
}

func (f *fakeSource) Read(ctx context.Context) (image.Image, error) {
	f.reads++
	if f.failures > 0 {
		f.failures--
		return nil, camera.ErrReadFailed
	}
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeProvider struct {
	faces []embedding.Face
	err   error
	calls int
}

func (p *fakeProvider) DetectAndEncode(_ context.Context, data []byte) ([]embedding.Face, error) {
	p.calls++
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return p.faces, p.err
}

type fakeDisplay struct {
	keys  []int
	shown int
}

func (d *fakeDisplay) Show(image.Image) error {
	d.shown++
	return nil
}

func (d *fakeDisplay) PollKey() int {
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Close() error { return nil }

type fakeSink struct {
	frames   []image.Image
	statuses []Status
}

func (s *fakeSink) Publish(frame image.Image, status Status) {
	s.frames = append(s.frames, frame)
	s.statuses = append(s.statuses, status)
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func aliceMatcher(t *testing.T) *facematch.Matcher {
	t.Helper()
	g, err := gallery.New([]gallery.Identity{
		{Label: "alice", Embeddings: []embedding.Vector{{0, 0}}},
		{Label: "bob", Embeddings: []embedding.Vector{{1, 0}}},
	}, gallery.StrategyMean)
	if err != nil {
		t.Fatalf("gallery.New() error: %v", err)
	}
	m, err := facematch.NewMatcher(g, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher() error: %v", err)
	}
	return m
}

func newTestLoop(t *testing.T, src camera.Source, settings Settings, opts ...LoopOption) (*Loop, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	opts = append([]LoopOption{WithLogger(quietLogger()), WithClock(clock.Now, clock.Sleep)}, opts...)
	l, err := NewLoop(src, settings, opts...)
	if err != nil {
		t.Fatalf("NewLoop() error: %v", err)
	}
	return l, clock
}

func step(t *testing.T, l *Loop, n int) {
	t.Helper()
	for i := range n {
		more, err := l.Step(context.Background())
		if err != nil {
			t.Fatalf("Step() #%d error: %v", i, err)
		}
		if !more {
			t.Fatalf("Step() #%d stopped the loop", i)
		}
	}
}

func TestNewLoop_Validation(t *testing.T) {
	src := &fakeSource{width: 8, height: 8}
	tests := []struct {
		name    string
		mode    Mode
		opts    []LoopOption
		wantErr bool
	}{
		{"recognize without matcher", ModeRecognize, []LoopOption{WithProvider(&fakeProvider{})}, true},
		{"recognize without provider", ModeRecognize, []LoopOption{WithMatcher(aliceMatcher(t))}, true},
		{"recognize", ModeRecognize, []LoopOption{WithProvider(&fakeProvider{}), WithMatcher(aliceMatcher(t))}, false},
		{"detect without provider", ModeDetect, nil, true},
		{"detect", ModeDetect, []LoopOption{WithProvider(&fakeProvider{})}, false},
		{"camera test", ModeCameraTest, nil, false},
		{"unknown mode", Mode("dance"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoop(src, DefaultSettings(tt.mode), tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLoop() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoop_ProcessesEveryNthFrame(t *testing.T) {
	provider := &fakeProvider{}
	settings := DefaultSettings(ModeRecognize)
	settings.ProcessEveryN = 2
	l, _ := newTestLoop(t, &fakeSource{width: 40, height: 40}, settings,
		WithProvider(provider), WithMatcher(aliceMatcher(t)))

	step(t, l, 5)

	if l.Session().FrameCount != 5 {
		t.Errorf("FrameCount = %d, want 5", l.Session().FrameCount)
	}
	// frames 2 and 4
	if provider.calls != 2 || l.Session().Processed != 2 {
		t.Errorf("provider calls = %d, processed = %d, want 2 and 2", provider.calls, l.Session().Processed)
	}
}

func TestLoop_RecognizesAndRescalesBoxes(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.Face{
		{Box: embedding.BBox{Top: 5, Right: 15, Bottom: 15, Left: 5}, Embedding: embedding.Vector{0, 0}},
		{Box: embedding.BBox{Top: 20, Right: 30, Bottom: 30, Left: 20}, Embedding: embedding.Vector{5, 5}},
	}}
	settings := DefaultSettings(ModeRecognize)
	settings.ProcessEveryN = 1
	settings.Scale = 0.5
	sink := &fakeSink{}
	l, _ := newTestLoop(t, &fakeSource{width: 80, height: 80}, settings,
		WithProvider(provider), WithMatcher(aliceMatcher(t)), WithSink(sink))

	step(t, l, 1)

	faces := l.Session().Faces
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	wantBox := embedding.BBox{Top: 10, Right: 30, Bottom: 30, Left: 10}
	if faces[0].Box != wantBox {
		t.Errorf("box = %+v, want %+v", faces[0].Box, wantBox)
	}
	if faces[0].Result.Label != "alice" || faces[0].Result.Confidence != 1 {
		t.Errorf("first face = %+v, want alice with confidence 1", faces[0].Result)
	}
	if faces[1].Result.Known || faces[1].Result.Label != "Unknown" {
		t.Errorf("second face = %+v, want Unknown", faces[1].Result)
	}
	if faces[0].Action != facematch.ActionAppeared {
		t.Errorf("action = %q, want appeared", faces[0].Action)
	}

	if len(sink.statuses) != 1 || sink.statuses[0].FaceCount != 2 || sink.statuses[0].KnownCount != 2 {
		t.Errorf("unexpected published status %+v", sink.statuses)
	}
	if b := sink.frames[0].Bounds(); b.Dx() != 80 || b.Dy() != 80 {
		t.Errorf("published frame size = %v, want full resolution", b)
	}
}

func TestLoop_SkippedFramesKeepLastResults(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.Face{
		{Box: embedding.BBox{Top: 1, Right: 5, Bottom: 5, Left: 1}, Embedding: embedding.Vector{1, 0}},
	}}
	settings := DefaultSettings(ModeRecognize)
	settings.ProcessEveryN = 2
	settings.Scale = 1
	l, _ := newTestLoop(t, &fakeSource{width: 20, height: 20}, settings,
		WithProvider(provider), WithMatcher(aliceMatcher(t)))

	step(t, l, 3)

	faces := l.Session().Faces
	if len(faces) != 1 || faces[0].Result.Label != "bob" {
		t.Errorf("expected bob to be kept after a skipped frame, got %+v", faces)
	}
}

func TestLoop_LogsLostFaces(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.Face{
		{Box: embedding.BBox{Top: 1, Right: 5, Bottom: 5, Left: 1}, Embedding: embedding.Vector{0, 0}},
	}}
	settings := DefaultSettings(ModeRecognize)
	settings.ProcessEveryN = 1
	settings.Scale = 1
	var logs bytes.Buffer
	l, _ := newTestLoop(t, &fakeSource{width: 20, height: 20}, settings,
		WithProvider(provider), WithMatcher(aliceMatcher(t)),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	step(t, l, 1)
	provider.faces = nil
	step(t, l, 1)

	if n := len(l.Session().Faces); n != 0 {
		t.Errorf("expected no faces after they left the frame, got %d", n)
	}
	if got := strings.Count(logs.String(), `msg="face lost"`); got != 1 {
		t.Errorf("face lost logged %d times, want 1:\n%s", got, logs.String())
	}
	if !strings.Contains(logs.String(), "label=alice") {
		t.Errorf("lost face should carry its label:\n%s", logs.String())
	}
}

func TestLoop_ProviderErrorDoesNotStop(t *testing.T) {
	provider := &fakeProvider{err: errors.New("server down")}
	settings := DefaultSettings(ModeDetect)
	settings.ProcessEveryN = 1
	l, _ := newTestLoop(t, &fakeSource{width: 20, height: 20}, settings, WithProvider(provider))

	step(t, l, 3)

	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
	if l.Session().Processed != 0 {
		t.Errorf("processed = %d, want 0", l.Session().Processed)
	}
}

func TestLoop_ReadFailureRetries(t *testing.T) {
	src := &fakeSource{width: 20, height: 20, failures: 2}
	l, clock := newTestLoop(t, src, DefaultSettings(ModeCameraTest))

	step(t, l, 3)

	if l.Session().FrameCount != 1 {
		t.Errorf("FrameCount = %d, want 1", l.Session().FrameCount)
	}
	if len(clock.sleeps) != 2 || clock.sleeps[0] != 100*time.Millisecond {
		t.Errorf("sleeps = %v, want two 100ms retries", clock.sleeps)
	}
}

func TestLoop_Quit(t *testing.T) {
	ch := make(chan Command, 1)
	ch <- CmdQuit
	src := &fakeSource{width: 8, height: 8}
	l, _ := newTestLoop(t, src, DefaultSettings(ModeCameraTest), WithCommands(ch))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if src.reads != 0 {
		t.Errorf("expected no reads after quit, got %d", src.reads)
	}
}

func TestLoop_QuitFromDisplayKey(t *testing.T) {
	display := &fakeDisplay{keys: []int{-1, -1, 'q'}}
	l, _ := newTestLoop(t, &fakeSource{width: 8, height: 8}, DefaultSettings(ModeCameraTest), WithDisplay(display))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if l.Session().FrameCount != 2 || display.shown != 2 {
		t.Errorf("frames = %d, shown = %d, want 2 and 2", l.Session().FrameCount, display.shown)
	}
}

func TestLoop_CancelledContextIsCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, _ := newTestLoop(t, &fakeSource{width: 8, height: 8}, DefaultSettings(ModeCameraTest))

	if err := l.Run(ctx); err != nil {
		t.Errorf("Run() with cancelled context = %v, want nil", err)
	}
}

func TestLoop_PauseShowsBlackFrame(t *testing.T) {
	ch := make(chan Command, 4)
	src := &fakeSource{width: 64, height: 48}
	sink := &fakeSink{}
	l, clock := newTestLoop(t, src, DefaultSettings(ModeCameraTest), WithCommands(ch), WithSink(sink))

	step(t, l, 1)
	ch <- CmdTogglePause
	step(t, l, 2)

	if src.reads != 1 {
		t.Errorf("reads = %d, want 1 (no reads while paused)", src.reads)
	}
	if !l.Session().Paused {
		t.Error("session should be paused")
	}
	last := sink.frames[len(sink.frames)-1]
	if b := last.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("paused frame size = %v, want last frame size", b)
	}
	if r, g, b, _ := last.At(0, 0).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Errorf("paused frame should be black")
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("expected a short sleep per paused step, got %v", clock.sleeps)
	}

	ch <- CmdTogglePause
	step(t, l, 1)
	if l.Session().Paused || src.reads != 2 {
		t.Errorf("expected resume, paused=%v reads=%d", l.Session().Paused, src.reads)
	}
}

func TestLoop_Screenshot(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		opts []LoopOption
		file string
	}{
		{"recognize", ModeRecognize, []LoopOption{WithProvider(&fakeProvider{})}, "recognition_screenshot_1700000000.jpg"},
		{"camera test", ModeCameraTest, nil, "screenshot_1.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ch := make(chan Command, 1)
			ch <- CmdScreenshot
			settings := DefaultSettings(tt.mode)
			settings.ScreenshotDir = dir
			opts := append([]LoopOption{WithCommands(ch), WithMatcher(aliceMatcher(t))}, tt.opts...)
			l, _ := newTestLoop(t, &fakeSource{width: 32, height: 32}, settings, opts...)

			step(t, l, 1)

			data, err := os.ReadFile(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("screenshot not written: %v", err)
			}
			if _, err := embedding.DecodeImage(data); err != nil {
				t.Errorf("screenshot is not a valid image: %v", err)
			}
		})
	}
}

func TestLoop_ScreenshotIgnoredWhilePaused(t *testing.T) {
	dir := t.TempDir()
	ch := make(chan Command, 2)
	ch <- CmdTogglePause
	ch <- CmdScreenshot
	settings := DefaultSettings(ModeCameraTest)
	settings.ScreenshotDir = dir
	l, _ := newTestLoop(t, &fakeSource{width: 8, height: 8}, settings, WithCommands(ch))

	step(t, l, 1)
	ch <- CmdTogglePause
	step(t, l, 1)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no screenshots, got %d", len(entries))
	}
}

func TestLoop_CameraTestFPS(t *testing.T) {
	l, clock := newTestLoop(t, &fakeSource{width: 8, height: 8}, DefaultSettings(ModeCameraTest))

	for range 30 {
		clock.now = clock.now.Add(100 * time.Millisecond)
		step(t, l, 1)
	}
	if fps := l.Session().FPS; fps < 9.99 || fps > 10.01 {
		t.Errorf("FPS = %v, want 10", fps)
	}
}

func TestRender(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 200, 200))
	s := NewSession(ModeRecognize, 1, time.Now())
	s.Faces = []facematch.TrackedFace{
		{Box: embedding.BBox{Top: 120, Right: 160, Bottom: 160, Left: 120},
			Result: facematch.Result{Label: "alice", Confidence: 0.87, Known: true}},
		{Box: embedding.BBox{Top: 60, Right: 100, Bottom: 100, Left: 60},
			Result: facematch.Unknown()},
	}

	out := Render(frame, s)

	green := color.RGBA{0, 255, 0, 255}
	red := color.RGBA{255, 0, 0, 255}
	if got := out.RGBAAt(120, 125); got != green {
		t.Errorf("known face edge = %v, want green", got)
	}
	if got := out.RGBAAt(60, 65); got != red {
		t.Errorf("unknown face edge = %v, want red", got)
	}
	if got := frame.RGBAAt(120, 125); got == green {
		t.Error("Render must not modify the input frame")
	}

	s.Mode = ModeDetect
	out = Render(frame, s)
	if got := out.RGBAAt(120, 125); got != (color.RGBA{255, 255, 0, 255}) {
		t.Errorf("detect mode edge = %v, want yellow", got)
	}
}

func TestFaceLabel(t *testing.T) {
	tests := []struct {
		result facematch.Result
		want   string
	}{
		{facematch.Result{Label: "alice", Confidence: 0.8712, Known: true}, "alice (0.87)"},
		{facematch.Result{Label: "Jiří", Confidence: 1, Known: true}, "Jiri (1.00)"},
		{facematch.Unknown(), "Unknown"},
	}
	for _, tt := range tests {
		if got := FaceLabel(tt.result); got != tt.want {
			t.Errorf("FaceLabel(%+v) = %q, want %q", tt.result, got, tt.want)
		}
	}
}

func TestScreenshotName(t *testing.T) {
	now := time.Unix(1234, 0)
	if got := ScreenshotName(ModeRecognize, 7, now); got != "recognition_screenshot_1234.jpg" {
		t.Errorf("got %q", got)
	}
	if got := ScreenshotName(ModeCameraTest, 7, now); got != "screenshot_7.jpg" {
		t.Errorf("got %q", got)
	}
}

func TestSession_ShouldProcess(t *testing.T) {
	s := NewSession(ModeRecognize, 0, time.Now())
	var processed []int
	for range 6 {
		s.FrameCount++
		if s.ShouldProcess(3) {
			processed = append(processed, s.FrameCount)
		}
	}
	if len(processed) != 2 || processed[0] != 3 || processed[1] != 6 {
		t.Errorf("processed frames = %v, want [3 6]", processed)
	}
	if !s.ShouldProcess(1) {
		t.Error("every frame should be processed when n = 1")
	}
}
