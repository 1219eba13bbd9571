package cmd

import (
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/kozaktomas/facecam/internal/stream"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize known faces in the live camera feed",
	Long: `Open the first working camera and label every detected face with the
closest known identity from the gallery, or "Unknown" when no reference is
within the tolerance.

Examples:
  # Default settings
  facecam recognize

  # Stricter matching, process every 3rd frame, browser preview
  facecam recognize --tolerance 0.5 --every 3 --preview :8080

  # IP camera snapshot endpoint
  facecam recognize --snapshot-url http://192.168.1.20/snapshot.jpg`,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("gallery", "", "Gallery file (default from config)")
	recognizeCmd.Flags().Float64("tolerance", -1, "Maximum distance for a match (default from config)")
	addStreamFlags(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v := mustGetString(cmd, "gallery"); v != "" {
		cfg.Gallery.Path = v
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.Match.Tolerance = mustGetFloat64(cmd, "tolerance")
	}
	applyStreamFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	matcher, err := loadMatcher(cfg, logging.Default())
	if err != nil {
		return err
	}
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)

	return runLive(cmd, cfg, stream.ModeRecognize, liveDeps{provider: client, matcher: matcher})
}
