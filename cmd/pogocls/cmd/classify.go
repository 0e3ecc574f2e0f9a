package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/pogocls/internal/batch"
	"github.com/MeKo-Tech/pogocls/internal/config"
	"github.com/spf13/cobra"
)

var validFormats = map[string]bool{"text": true, "json": true, "csv": true}

func newClassifyCmd() *cobra.Command {
	classifyCmd := &cobra.Command{
		Use:   "classify [files|dirs...]",
		Short: "Classify text-line images as 0 or 180 degrees and correct them",
		Long: `Classify cropped text-line images as upright (0) or upside down (180).
Images labelled 180 with a score above the threshold are rotated; use --save-dir
to write the corrected images as PNG.

Supported formats: JPEG, PNG, BMP, TIFF

Examples:
  pogocls classify line.png
  pogocls classify crops/ --recursive --format json --output results.json
  pogocls classify crops/*.png --threshold 0.95 --save-dir corrected/`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         runClassifyCommand,
	}

	classifyCmd.Flags().String("model", "", "path to the classifier model (overrides default)")
	classifyCmd.Flags().Float64("threshold", 0, "rotation confidence threshold (0..1, default from config)")
	classifyCmd.Flags().Int("batch-size", 0, "images per inference call (default from config)")
	classifyCmd.Flags().String("resampler", "", "resize implementation: imaging or nfnt")
	classifyCmd.Flags().Bool("gpu", true, "prefer CUDA when available")

	classifyCmd.Flags().StringP("format", "f", "text", "output format: text, json, csv")
	classifyCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	classifyCmd.Flags().String("save-dir", "", "directory to save corrected images")
	classifyCmd.Flags().Bool("quiet", false, "suppress progress and statistics output")

	classifyCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	classifyCmd.Flags().StringSlice("include", nil, "file patterns to include (e.g. *.png)")
	classifyCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")

	return classifyCmd
}

// configToBatchConfig maps the centralized configuration to batch.Config.
// Flags that were set explicitly override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	if cmd.Flags().Changed("model") {
		cfg.Classifier.ModelPath, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Classifier.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Classifier.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("resampler") {
		cfg.Classifier.Resampler, _ = cmd.Flags().GetString("resampler")
	}
	if cmd.Flags().Changed("gpu") {
		cfg.GPU.Enabled, _ = cmd.Flags().GetBool("gpu")
	}

	batchConfig := &batch.Config{
		Classifier:      cfg.ToClassifierConfig(),
		Recursive:       cfg.Batch.Recursive,
		IncludePatterns: cfg.Batch.Include,
		ExcludePatterns: cfg.Batch.Exclude,
		Format:          cfg.Output.Format,
		OutputFile:      cfg.Output.File,
		SaveDir:         cfg.Output.Dir,
	}

	if cmd.Flags().Changed("format") {
		batchConfig.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("output") {
		batchConfig.OutputFile, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("save-dir") {
		batchConfig.SaveDir, _ = cmd.Flags().GetString("save-dir")
	}
	if cmd.Flags().Changed("recursive") {
		batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	if cmd.Flags().Changed("include") {
		batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}
	if cmd.Flags().Changed("exclude") {
		batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}
	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")

	if !validFormats[batchConfig.Format] {
		return nil, fmt.Errorf("invalid output format: %s (must be text, json or csv)", batchConfig.Format)
	}
	return batchConfig, nil
}

func runClassifyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	batchConfig, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !batchConfig.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Classifying %d input(s)...\n", len(args))
	}

	result, err := batch.ProcessBatch(ctx, args, batchConfig)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if err := result.SaveResults(cmd.OutOrStdout(), batchConfig.Format, batchConfig.OutputFile, batchConfig.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	result.PrintStats(cmd.ErrOrStderr(), batchConfig.Quiet)
	return nil
}
