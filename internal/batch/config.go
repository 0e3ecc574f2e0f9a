package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Config holds all configuration for a classify run over files.
type Config struct {
	Classifier orientation.Config

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format     string
	OutputFile string
	SaveDir    string // corrected images are written here as PNG when set
	Quiet      bool
}

// Result holds the result of a classify run.
type Result struct {
	ImagePaths []string
	Output     *orientation.BatchResult
	SavedPaths []string
	Duration   time.Duration
}

// Rotated returns the number of images that were turned upright.
func (r *Result) Rotated() int {
	n := 0
	for _, res := range r.Output.Results {
		if res.Rotated {
			n++
		}
	}
	return n
}

// FormatResults formats the results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Output, r.ImagePaths, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
	} else {
		_, _ = fmt.Fprint(w, output)
	}

	return nil
}

// PrintStats prints processing statistics with grouped numbers.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	p := message.NewPrinter(language.English)
	total := len(r.ImagePaths)
	_, _ = p.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = p.Fprintf(w, "  Total images: %d\n", total)
	_, _ = p.Fprintf(w, "  Rotated: %d\n", r.Rotated())
	_, _ = p.Fprintf(w, "  Inference: %v\n", r.Output.Elapsed.Round(time.Microsecond))
	_, _ = p.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if secs := r.Duration.Seconds(); secs > 0 {
		_, _ = p.Fprintf(w, "  Throughput: %.1f images/sec\n", float64(total)/secs)
	}
}
