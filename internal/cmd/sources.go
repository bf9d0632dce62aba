package cmd

import (
	"github.com/spf13/cobra"

	"github.com/formscout/formscout/internal/config"
	"github.com/formscout/formscout/internal/output"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured form sources",
	Long:  "List the organizations in the source registry with their search endpoints and rate limits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return loadConfigError(err)
		}
		registry, err := buildRegistry(cfg.Sources)
		if err != nil {
			return loadConfigError(err)
		}
		return writeOutput(cmd, "sources", func(f output.Formatter) (string, error) {
			return f.FormatSources(registry.Sources())
		})
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	addOutputFlags(sourcesCmd)
}
