package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/facecam/internal/camera"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/gallery"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/kozaktomas/facecam/internal/stream"
	"github.com/kozaktomas/facecam/internal/web"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

// addStreamFlags registers the flags shared by the live commands.
func addStreamFlags(c *cobra.Command) {
	c.Flags().Int("every", 0, "Process every Nth frame (default from config)")
	c.Flags().Float64("scale", 0, "Downscale factor applied before detection, in (0, 1]")
	c.Flags().String("preview", "", "Serve a browser preview on this address, e.g. :8080")
	c.Flags().String("snapshot-url", "", "Poll an HTTP snapshot camera instead of a local device")
	c.Flags().String("screenshot-dir", "", "Directory for screenshots")
	c.Flags().Bool("no-window", false, "Do not open a display window")
}

// applyStreamFlags overrides cfg with the flags set on c.
func applyStreamFlags(c *cobra.Command, cfg *config.Config) {
	if v := mustGetInt(c, "every"); v > 0 {
		cfg.Stream.ProcessEveryN = v
	}
	if v := mustGetFloat64(c, "scale"); v > 0 {
		cfg.Stream.Scale = v
	}
	if v := mustGetString(c, "preview"); v != "" {
		cfg.Preview.Addr = v
	}
	if v := mustGetString(c, "snapshot-url"); v != "" {
		cfg.Camera.SnapshotURL = v
	}
	if v := mustGetString(c, "screenshot-dir"); v != "" {
		cfg.Stream.ScreenshotDir = v
	}
}

// loadMatcher loads the gallery and builds a matcher with the configured tolerance.
func loadMatcher(cfg *config.Config, logger *slog.Logger) (*facematch.Matcher, error) {
	g, err := gallery.Load(cfg.Gallery.Path)
	if err != nil {
		if errors.Is(err, gallery.ErrGalleryNotFound) {
			return nil, goerr.Wrap(err, fmt.Sprintf("gallery file not found: %s, run `facecam enroll` first", cfg.Gallery.Path))
		}
		return nil, err
	}
	logger.Info("loaded known faces", "encodings", g.Len(), "people", g.Labels(), "strategy", g.Strategy())

	m, err := facematch.NewMatcher(g, cfg.Match.Tolerance,
		facematch.WithHNSW(cfg.Match.HNSWThreshold, cfg.Match.HNSWCandidates))
	if err != nil {
		return nil, err
	}
	if m.UsesIndex() {
		logger.Info("using HNSW index for matching", "candidates", cfg.Match.HNSWCandidates)
	}
	return m, nil
}

// cameraOpener picks the snapshot camera when configured, else local devices.
func cameraOpener(cfg *config.Config) (camera.Opener, []int, error) {
	if cfg.Camera.SnapshotURL != "" {
		return camera.SnapshotOpener(cfg.Camera.SnapshotURL, nil), []int{0}, nil
	}
	if !camera.LocalAvailable {
		return nil, nil, goerr.Wrap(camera.ErrDeviceUnavailable,
			"this build has no local camera support, rebuild with -tags gocv or set SNAPSHOT_URL")
	}
	return camera.LocalOpener(), cfg.Camera.Indices, nil
}

// liveDeps are the mode specific collaborators of a live run.
type liveDeps struct {
	provider embedding.Provider
	matcher  *facematch.Matcher
}

// runLive opens the camera and runs the frame loop until quit or Ctrl+C.
func runLive(c *cobra.Command, cfg *config.Config, mode stream.Mode, deps liveDeps) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logging.Default()
	ctx = logging.With(ctx, logger)

	opener, indices, err := cameraOpener(cfg)
	if err != nil {
		return err
	}
	src, idx, err := camera.Open(ctx, opener, indices, camera.Settings{
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		FPS:        cfg.Camera.FPS,
		BufferSize: cfg.Camera.BufferSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("cleaning up")
		if err := src.Close(); err != nil {
			logger.Warn("failed to release camera", "error", err)
		}
	}()
	logger.Info("camera ready", "index", idx)

	commands := make(chan stream.Command, constants.ControlChannelBuffer)
	opts := []stream.LoopOption{
		stream.WithLogger(logger),
		stream.WithCommands(commands),
	}
	if deps.provider != nil {
		opts = append(opts, stream.WithProvider(deps.provider))
	}
	if deps.matcher != nil {
		opts = append(opts, stream.WithMatcher(deps.matcher))
	}

	if camera.LocalAvailable && !mustGetBool(c, "no-window") {
		display, err := camera.NewWindow(cfg.Stream.WindowTitle)
		if err != nil {
			logger.Warn("no display window", "error", err)
		} else {
			defer display.Close()
			opts = append(opts, stream.WithDisplay(display))
		}
	}
	if isTerminal(os.Stdin) {
		go stream.ReadCommands(ctx, os.Stdin, commands)
	}

	if cfg.Preview.Addr != "" {
		server := web.NewServer(web.Options{
			Addr:           cfg.Preview.Addr,
			AllowedOrigins: cfg.Preview.AllowedOrigins,
			Commands:       commands,
			Matcher:        deps.matcher,
			Provider:       deps.provider,
			Logger:         logger,
		})
		opts = append(opts, stream.WithSink(server.Frames()))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("preview server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error during preview shutdown", "error", err)
			}
		}()
		fmt.Printf("Preview available on http://%s\n", previewURLHost(cfg.Preview.Addr))
	}

	loop, err := stream.NewLoop(src, stream.Settings{
		Mode:          mode,
		ProcessEveryN: cfg.Stream.ProcessEveryN,
		Scale:         cfg.Stream.Scale,
		ScreenshotDir: cfg.Stream.ScreenshotDir,
		IoUThreshold:  constants.IoUThreshold,
	}, opts...)
	if err != nil {
		return err
	}

	fmt.Println("Controls:")
	fmt.Println("  - Press 'q' to quit")
	fmt.Println("  - Press 'p' to pause/resume")
	fmt.Println("  - Press 's' to save screenshot")
	fmt.Println("  (in the terminal, type the key and press Enter)")

	if err := loop.Run(ctx); err != nil {
		return err
	}
	fmt.Println("Done!")
	return nil
}

// previewURLHost turns a listen address like ":8080" into a browsable host.
func previewURLHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
