package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/formscout/formscout/internal/config"
	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/core/engine"
	"github.com/formscout/formscout/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective rate limits per organization",
	Long: `List each organization's effective requests-per-minute budget after
configured overrides and the safety margin. Token counts reflect this process;
a running server reports its live buckets at /v1/rate-limits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := cmd.Flags().GetString("prefix")
		if err != nil {
			return err
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return loadConfigError(err)
		}
		registry, err := buildRegistry(cfg.Sources)
		if err != nil {
			return loadConfigError(err)
		}

		limiter := engine.NewRateLimiter(registry.Sources())
		limiter.ApplyOverrides(cfg.RateLimits)
		limiter.ApplySafetyMargin(cfg.RateLimitMargin)

		states := filterRateLimits(limiter.Snapshot(), prefix)
		return writeOutput(cmd, "rate-limit.list", func(f output.Formatter) (string, error) {
			return f.FormatRateLimits(states)
		})
	},
}

func init() {
	rateLimitListCmd.Flags().String("prefix", "", "Only list organizations with this prefix (case-insensitive)")
	addOutputFlags(rateLimitListCmd)
}

func filterRateLimits(states []core.RateLimiterState, prefix string) []core.RateLimiterState {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return states
	}
	filtered := make([]core.RateLimiterState, 0, len(states))
	for _, state := range states {
		if strings.HasPrefix(strings.ToLower(state.Organization), prefix) {
			filtered = append(filtered, state)
		}
	}
	return filtered
}
