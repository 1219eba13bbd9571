package cmd

import (
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/stream"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Draw detected faces in the live camera feed without matching",
	Long: `Open the first working camera and draw a box around every detected
face. No gallery is needed; useful to check the camera and the embedding
server before enrolling.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	addStreamFlags(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyStreamFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	return runLive(cmd, cfg, stream.ModeDetect, liveDeps{provider: client})
}
