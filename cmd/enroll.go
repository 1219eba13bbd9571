package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/enroll"
	"github.com/kozaktomas/facecam/internal/gallery"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Build the face gallery from a dataset directory",
	Long: `Build the gallery of known faces from a dataset laid out as
<dataset>/<person name>/<image>. Every image is sent to the embedding server
and the first detected face is used. Images without a face are skipped.

Strategies:
  mean   one averaged encoding per person (recommended)
  multi  one encoding per image

When --strategy is not given and stdin is a terminal, you are asked to choose.

Examples:
  # Enroll with the averaged strategy
  facecam enroll --strategy mean

  # Custom dataset and output file
  facecam enroll --dataset ./people --output ./people.gob.zst --strategy multi`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dataset", "", "Dataset directory (default from config)")
	enrollCmd.Flags().String("output", "", "Gallery file to write (default from config)")
	enrollCmd.Flags().String("strategy", "", "Aggregation strategy: mean or multi")
	enrollCmd.Flags().Int("concurrency", 0, "Parallel requests to the embedding server (default from config)")
	enrollCmd.Flags().Bool("json", false, "Print the enrollment report as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v := mustGetString(cmd, "dataset"); v != "" {
		cfg.Gallery.DatasetDir = v
	}
	if v := mustGetString(cmd, "output"); v != "" {
		cfg.Gallery.Path = v
	}
	if v := mustGetInt(cmd, "concurrency"); v > 0 {
		cfg.Gallery.Concurrency = v
	}
	jsonOutput := mustGetBool(cmd, "json")

	var strategy gallery.Strategy
	switch {
	case cmd.Flags().Changed("strategy"):
		strategy, err = gallery.ParseStrategy(mustGetString(cmd, "strategy"))
	case !jsonOutput && isTerminal(os.Stdin):
		strategy, err = promptStrategy(os.Stdin, os.Stdout)
	default:
		strategy, err = gallery.ParseStrategy(cfg.Gallery.Strategy)
	}
	if err != nil {
		return err
	}
	cfg.Gallery.Strategy = string(strategy)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logging.Default()
	ctx = logging.With(ctx, logger)

	ds, err := enroll.Scan(cfg.Gallery.DatasetDir)
	if err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Printf("Enrolling %d people (%d images) from %s using the %s strategy\n",
			len(ds.People), ds.TotalImages(), ds.Root, strategy)
	}

	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	opts := []enroll.Option{
		enroll.WithConcurrency(cfg.Gallery.Concurrency),
		enroll.WithLogger(logger),
	}
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(ds.TotalImages(),
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		opts = append(opts, enroll.WithProgress(func() { _ = bar.Add(1) }))
	}

	g, report, err := enroll.NewBuilder(client, strategy, opts...).Build(ctx, ds)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, enroll.ErrNoIdentities) && report != nil && !jsonOutput {
			printSkipped(report)
		}
		return err
	}

	if err := gallery.Save(cfg.Gallery.Path, g); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(struct {
			Gallery string          `json:"gallery"`
			Summary gallery.Summary `json:"summary"`
			Report  *enroll.Report  `json:"report"`
		}{cfg.Gallery.Path, g.Summary(), report})
	}

	printSkipped(report)
	printDuplicates(report)
	printEnrollSummary(g, cfg.Gallery.Path)
	return nil
}

// promptStrategy asks for the strategy until a valid choice is entered.
func promptStrategy(in io.Reader, out io.Writer) (gallery.Strategy, error) {
	fmt.Fprintln(out, "Face Recognition Enrollment")
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintln(out, "Choose enrollment method:")
	fmt.Fprintln(out, "1. Single averaged encoding per person (recommended)")
	fmt.Fprintln(out, "2. Multiple encodings per person")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter your choice (1 or 2): ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no strategy chosen")
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return gallery.StrategyMean, nil
		case "2":
			return gallery.StrategyMulti, nil
		}
		fmt.Fprintln(out, "Please enter 1 or 2")
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printSkipped(report *enroll.Report) {
	if len(report.Skipped) == 0 && len(report.Dropped) == 0 {
		return
	}
	warn := color.New(color.FgYellow)
	for _, s := range report.Skipped {
		warn.Printf("  ✗ %s/%s: %s\n", s.Identity, s.Image, s.Reason)
	}
	for _, label := range report.Dropped {
		warn.Printf("  → No valid face encodings found for %s\n", label)
	}
}

func printDuplicates(report *enroll.Report) {
	warn := color.New(color.FgYellow)
	for _, d := range report.Duplicates {
		if d.CrossIdentity() {
			warn.Printf("  ! %s/%s looks like the same photo as %s/%s\n", d.Identity, d.Image, d.OtherIdentity, d.OtherImage)
		}
	}
}

func printEnrollSummary(g *gallery.Gallery, path string) {
	people := g.Labels()
	slices.Sort(people)

	color.New(color.FgGreen, color.Bold).Println("\nEnrollment completed!")
	fmt.Printf("- Total encodings: %d\n", g.Len())
	fmt.Printf("- Unique people: %d\n", g.IdentityCount())
	fmt.Printf("- People: %s\n", strings.Join(people, ", "))
	fmt.Printf("- Encodings saved to: %s\n", path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
