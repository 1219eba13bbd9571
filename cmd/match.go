package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>...",
	Short: "Match faces in still images against the gallery",
	Long: `Detect faces in one or more image files and print the closest known
identity for each face.

Examples:
  facecam match group.jpg
  facecam match --json --tolerance 0.5 *.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("gallery", "", "Gallery file (default from config)")
	matchCmd.Flags().Float64("tolerance", -1, "Maximum distance for a match (default from config)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// imageMatch is the match result of one image file.
type imageMatch struct {
	File   string                `json:"file"`
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
	Faces  []facematch.FaceMatch `json:"faces"`
	Error  string                `json:"error,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
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
	if err := cfg.Validate(); err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	logger := logging.Default()
	matcher, err := loadMatcher(cfg, logger)
	if err != nil {
		return err
	}
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	ctx := logging.With(cmd.Context(), logger)

	var results []imageMatch
	failed := 0
	for _, path := range args {
		res, err := matchImage(ctx, client, matcher, path)
		if err != nil {
			failed++
			logger.Warn("failed to match image", "file", path, "error", err)
			res = imageMatch{File: path, Error: err.Error()}
		}
		results = append(results, res)
	}

	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		printMatches(results)
	}

	if failed > 0 {
		return goerr.New("some images could not be matched", goerr.V("failed", failed), goerr.V("total", len(args)))
	}
	return nil
}

func matchImage(ctx context.Context, p embedding.Provider, m *facematch.Matcher, path string) (imageMatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imageMatch{}, goerr.Wrap(err, "failed to read image", goerr.V("path", path))
	}
	img, err := embedding.DecodeImage(data)
	if err != nil {
		return imageMatch{}, err
	}
	faces, err := p.DetectAndEncode(ctx, data)
	if err != nil {
		return imageMatch{}, err
	}
	results, err := m.MatchFaces(faces)
	if err != nil {
		return imageMatch{}, err
	}

	b := img.Bounds()
	return imageMatch{
		File:   path,
		Width:  b.Dx(),
		Height: b.Dy(),
		Faces:  facematch.DescribeFaces(faces, results, b.Dx(), b.Dy()),
	}, nil
}

func printMatches(results []imageMatch) {
	known := color.New(color.FgGreen)
	unknown := color.New(color.FgRed)

	for _, r := range results {
		name := filepath.Base(r.File)
		if r.Error != "" {
			unknown.Printf("%s: error: %s\n", name, r.Error)
			continue
		}
		fmt.Printf("%s (%dx%d): %d face(s)\n", name, r.Width, r.Height, len(r.Faces))
		for _, f := range r.Faces {
			box := fmt.Sprintf("[%d,%d,%d,%d]", f.Box.Left, f.Box.Top, f.Box.Right, f.Box.Bottom)
			if f.Result.Known {
				known.Printf("  #%d %s (%.2f) at %s\n", f.Index, f.Result.Label, f.Result.Confidence, box)
			} else {
				unknown.Printf("  #%d %s at %s\n", f.Index, f.Result.Label, box)
			}
		}
	}
}
