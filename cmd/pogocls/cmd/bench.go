package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/pogocls/internal/batch"
	"github.com/MeKo-Tech/pogocls/internal/benchmark"
	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/utils"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench [files|dirs...]",
		Short: "Measure classification latency and throughput",
		Long: `Run the classifier repeatedly over a fixed set of text-line images and report
latency percentiles, throughput and memory growth. Without arguments a set of
synthetic text lines is rendered.

Examples:
  pogocls bench
  pogocls bench --lines 64 --iterations 20
  pogocls bench crops/ --compare-gpu --format json`,
		SilenceUsage: true,
		RunE:         runBenchCommand,
	}

	benchCmd.Flags().String("model", "", "path to the classifier model (overrides default)")
	benchCmd.Flags().Int("batch-size", 0, "images per inference call (default from config)")
	benchCmd.Flags().Int("iterations", 10, "timed iterations")
	benchCmd.Flags().Int("warmup", 1, "untimed warmup iterations")
	benchCmd.Flags().Int("lines", 32, "synthetic lines to render when no inputs are given")
	benchCmd.Flags().Int("flip-every", 4, "render every n-th synthetic line upside down (0 = never)")
	benchCmd.Flags().Bool("gpu", true, "prefer CUDA when available")
	benchCmd.Flags().Bool("compare-gpu", false, "run once on CPU and once on GPU and compare")
	benchCmd.Flags().StringP("format", "f", "text", "output format: text, json")
	benchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")

	return benchCmd
}

// benchImages loads the given inputs or renders synthetic lines.
func benchImages(cmd *cobra.Command, args []string) ([]image.Image, error) {
	if len(args) == 0 {
		n, _ := cmd.Flags().GetInt("lines")
		flipEvery, _ := cmd.Flags().GetInt("flip-every")
		if n <= 0 {
			return nil, fmt.Errorf("lines must be positive, got %d", n)
		}
		return benchmark.SyntheticLines(n, flipEvery)
	}

	recursive, _ := cmd.Flags().GetBool("recursive")
	files, err := batch.DiscoverImageFiles(args, recursive, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found in the specified paths")
	}
	images := make([]image.Image, 0, len(files))
	for _, r := range utils.BatchLoadImages(files) {
		if r.Err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", r.Path, r.Err)
		}
		images = append(images, r.Img)
	}
	return images, nil
}

func runBenchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("model") {
		cfg.Classifier.ModelPath, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Classifier.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("gpu") {
		cfg.GPU.Enabled, _ = cmd.Flags().GetBool("gpu")
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format: %s (must be text or json)", format)
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	warmup, _ := cmd.Flags().GetInt("warmup")
	compare, _ := cmd.Flags().GetBool("compare-gpu")

	images, err := benchImages(cmd, args)
	if err != nil {
		return err
	}

	clsCfg := cfg.ToClassifierConfig()
	opts := benchmark.Options{Iterations: iterations, Warmup: warmup}

	if !compare {
		opts.Name = "classify"
		res, err := benchOnce(cmd.Context(), clsCfg, images, opts)
		if err != nil {
			return err
		}
		return writeBenchResults(cmd.OutOrStdout(), format, []benchmark.Result{res}, nil)
	}

	clsCfg.GPU.UseGPU = false
	opts.Name = "cpu"
	cpu, err := benchOnce(cmd.Context(), clsCfg, images, opts)
	if err != nil {
		return err
	}
	cmp := benchmark.Comparison{CPU: cpu}

	clsCfg.GPU.UseGPU = true
	opts.Name = "gpu"
	if gpu, err := benchOnce(cmd.Context(), clsCfg, images, opts); err != nil {
		slog.Warn("GPU benchmark unavailable", "error", err)
	} else {
		cmp.GPU = gpu
		cmp.GPUAvailable = true
	}

	results := []benchmark.Result{cmp.CPU}
	if cmp.GPUAvailable {
		results = append(results, cmp.GPU)
	}
	return writeBenchResults(cmd.OutOrStdout(), format, results, &cmp)
}

func benchOnce(ctx context.Context, cfg orientation.Config, images []image.Image, opts benchmark.Options) (benchmark.Result, error) {
	cls, err := orientation.NewClassifier(cfg)
	if err != nil {
		return benchmark.Result{}, err
	}
	defer func() { _ = cls.Close() }()

	res, err := benchmark.Run(ctx, cls, images, opts)
	if err != nil {
		return res, fmt.Errorf("benchmark %s failed: %w", opts.Name, err)
	}
	return res, nil
}

type benchReport struct {
	Name         string  `json:"name"`
	Images       int     `json:"images"`
	Iterations   int     `json:"iterations"`
	MeanMs       float64 `json:"mean_ms"`
	P50Ms        float64 `json:"p50_ms"`
	P95Ms        float64 `json:"p95_ms"`
	InferenceMs  float64 `json:"inference_ms"`
	ImagesPerSec float64 `json:"images_per_sec"`
	Rotated      int     `json:"rotated"`
	AllocDeltaKB int64   `json:"alloc_delta_kb"`
}

func writeBenchResults(w io.Writer, format string, results []benchmark.Result, cmp *benchmark.Comparison) error {
	if format == "json" {
		reports := make([]benchReport, 0, len(results))
		for _, r := range results {
			reports = append(reports, benchReport{
				Name:         r.Name,
				Images:       r.Images,
				Iterations:   r.Iterations,
				MeanMs:       float64(r.Mean().Microseconds()) / 1000,
				P50Ms:        float64(r.Percentile(50).Microseconds()) / 1000,
				P95Ms:        float64(r.Percentile(95).Microseconds()) / 1000,
				InferenceMs:  float64(r.Inference.Microseconds()) / 1000,
				ImagesPerSec: r.Throughput(),
				Rotated:      r.Rotated,
				AllocDeltaKB: r.AllocDeltaKB(),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	benchmark.PrintResults(w, results)
	if cmp != nil {
		_, _ = fmt.Fprintln(w, cmp.String())
	}
	return nil
}
