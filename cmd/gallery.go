package cmd

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/facecam/internal/gallery"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the face gallery",
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the identities and encodings stored in the gallery",
	RunE:  runGalleryInfo,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryInfoCmd)

	galleryInfoCmd.Flags().String("gallery", "", "Gallery file (default from config)")
	galleryInfoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGalleryInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Gallery.Path
	if v := mustGetString(cmd, "gallery"); v != "" {
		path = v
	}

	g, err := gallery.Load(path)
	if err != nil {
		return err
	}
	summary := g.Summary()

	if mustGetBool(cmd, "json") {
		return printJSON(struct {
			Path string `json:"path"`
			gallery.Summary
		}{path, summary})
	}

	fmt.Printf("Gallery:    %s\n", path)
	fmt.Printf("Snapshot:   %s\n", summary.SnapshotID)
	fmt.Printf("Created:    %s\n", summary.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Strategy:   %s\n", summary.Strategy)
	fmt.Printf("Dimension:  %d\n", summary.Dim)
	fmt.Printf("Encodings:  %d\n", summary.Encodings)
	fmt.Printf("People (%d): %s\n", summary.People, strings.Join(summary.Labels, ", "))

	// The sidecar is informational; a missing one is not an error.
	if meta, err := gallery.LoadMetadata(path); err == nil && meta.SnapshotID != summary.SnapshotID {
		fmt.Printf("Warning: %s describes snapshot %s\n", gallery.MetaPath(path), meta.SnapshotID)
	}
	return nil
}
