package cmd

import (
	"github.com/kozaktomas/facecam/internal/stream"
	"github.com/spf13/cobra"
)

var cameraTestCmd = &cobra.Command{
	Use:   "camera-test",
	Short: "Check camera access and report the frame rate",
	Long: `Probe the configured camera indices, show the feed and log the frame
rate every 30 frames. 's' saves screenshot_<frame>.jpg.`,
	RunE: runCameraTest,
}

func init() {
	rootCmd.AddCommand(cameraTestCmd)
	addStreamFlags(cameraTestCmd)
}

func runCameraTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyStreamFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return runLive(cmd, cfg, stream.ModeCameraTest, liveDeps{})
}
