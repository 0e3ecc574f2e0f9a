package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "models",
		Short:        "List known classifier models and where they resolve to",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tINPUT\tSTATUS\tPATH")
			for _, m := range models.ListAvailableModels() {
				path := models.ResolveModelPath(cfg.ModelsDir, m.Type, m.Filename)
				status := "found"
				if models.ValidateModelExists(path) != nil {
					status = "missing"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%dx%dx%d\t%s\t%s\n",
					m.Name, m.Input[0], m.Input[1], m.Input[2], status, path)
			}
			return tw.Flush()
		},
	}
}
