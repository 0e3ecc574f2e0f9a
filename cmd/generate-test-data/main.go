package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/testutil"
	"github.com/MeKo-Tech/pogocls/internal/utils"
)

var fixtureTexts = []string{
	"Hello",
	"Hello World",
	"Invoice 2024-0117",
	"The quick brown fox jumps",
	"Total amount due: 1,234.56 EUR",
	"Lorem ipsum dolor sit amet, consectetur adipiscing",
}

func main() {
	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", testutil.LinesFixtureDir, "output directory, relative to the project root")
		height  = flag.Int("height", 32, "line height in pixels")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate upright and upside-down text-line fixtures for pogocls.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	dir := *outDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	fixtures, err := generate(dir, *height, *verbose)
	if err != nil {
		slog.Error("Failed to generate text lines", "error", err)
		os.Exit(1)
	}
	if err := writeManifest(filepath.Join(dir, "manifest.json"), fixtures); err != nil {
		slog.Error("Failed to write manifest", "error", err)
		os.Exit(1)
	}

	slog.Info("Test data generation completed successfully", "dir", dir, "lines", len(fixtures))
}

// generate renders every fixture text upright and flipped into dir.
func generate(dir string, height int, verbose bool) ([]testutil.LineFixture, error) {
	if err := testutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	cfg := testutil.DefaultTextLineConfig()
	cfg.Height = height

	fixtures := make([]testutil.LineFixture, 0, 2*len(fixtureTexts))
	for i, text := range fixtureTexts {
		for _, flipped := range []bool{false, true} {
			cfg.Text = text
			cfg.Flipped = flipped
			img, err := testutil.GenerateTextLine(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to render %q: %w", text, err)
			}

			label := orientation.LabelUpright
			if flipped {
				label = orientation.LabelFlipped
			}
			name := fmt.Sprintf("line_%02d_%s.png", i+1, label)
			if err := utils.SaveImagePNG(filepath.Join(dir, name), img); err != nil {
				return nil, err
			}
			if verbose {
				slog.Info("Generated line", "file", name, "label", label, "width", img.Bounds().Dx())
			}
			fixtures = append(fixtures, testutil.LineFixture{File: name, Text: text, Label: label})
		}
	}
	return fixtures, nil
}

func writeManifest(path string, fixtures []testutil.LineFixture) error {
	data, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
