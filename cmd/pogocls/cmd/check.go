package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check ONNX Runtime setup and the classifier model",
		Long: `Verify that the ONNX Runtime shared library can be located and initialized
and that the configured classifier model file exists.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Checking ONNX Runtime setup...")

			var failed bool
			if err := onnx.EnsureEnvironment(cfg.GPU.Enabled); err != nil {
				failed = true
				_, _ = fmt.Fprintf(out, "  runtime: FAILED (%v)\n", err)
				_, _ = fmt.Fprintf(out, "  set %s to the onnxruntime shared library\n", onnx.EnvLibraryPath)
			} else {
				_, _ = fmt.Fprintln(out, "  runtime: ok")
			}

			modelPath := cfg.ToClassifierConfig().ModelPath
			if err := models.ValidateModelExists(modelPath); err != nil {
				failed = true
				_, _ = fmt.Fprintf(out, "  model:   FAILED (%v)\n", err)
			} else {
				_, _ = fmt.Fprintf(out, "  model:   ok (%s)\n", modelPath)
			}

			if failed {
				return errors.New("setup check failed")
			}
			_, _ = fmt.Fprintln(out, "All checks passed.")
			return nil
		},
	}
	return checkCmd
}
