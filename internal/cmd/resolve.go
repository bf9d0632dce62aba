package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/metrics"
	"github.com/formscout/formscout/internal/observability"
	"github.com/formscout/formscout/internal/output"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [form...]",
	Short: "Resolve forms to their current document URLs",
	Long: `Resolve one or more form names for a jurisdiction to the publishing
organization's current document URL.

A single form prints one result. Several forms, or --requests-file, run as a
batch; each line of the file is "form" or "form,jurisdiction".`,
	Example: `  formscout resolve "Residential Purchase Agreement" --jurisdiction California
  formscout resolve --requests-file forms.txt --output-format json`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringP("jurisdiction", "j", "", "State or jurisdiction hint (e.g. California)")
	resolveCmd.Flags().String("requests-file", "", "Read lookups from a file (- for stdin)")
	resolveCmd.Flags().Bool("no-cache", false, "Skip the result cache")
	addOutputFlags(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	jurisdiction, err := cmd.Flags().GetString("jurisdiction")
	if err != nil {
		return err
	}
	requestsFile, err := cmd.Flags().GetString("requests-file")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	requests, err := resolveRequests(args, jurisdiction, requestsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := bootstrap(ctx, bootstrapOptions{noCache: noCache})
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if len(requests) == 1 && strings.TrimSpace(requestsFile) == "" {
		req := requests[0]
		result, err := rt.resolver.Resolve(ctx, req.FormName, req.Jurisdiction)
		metrics.RecordOperation("resolve", err == nil)
		if err != nil {
			return err
		}
		return writeOutput(cmd, "resolve."+req.FormName, func(f output.Formatter) (string, error) {
			return f.FormatResult(result)
		})
	}

	batch, err := rt.resolver.ResolveBatch(ctx, requests)
	metrics.RecordOperation("resolve_batch", err == nil)
	if err != nil {
		return err
	}
	if observability.CLILogger != nil {
		observability.CLILogger.Debug("Batch resolved",
			zap.Int("resolved", batch.Resolved),
			zap.Int("total", batch.Total),
			zap.Any("failures", lookupKinds(batch)))
	}
	return writeOutput(cmd, "resolve.batch", func(f output.Formatter) (string, error) {
		return f.FormatBatch(batch)
	})
}

// lookupKinds counts batch failures by kind for summaries.
func lookupKinds(batch *core.BatchResult) map[core.LookupErrorKind]int {
	counts := make(map[core.LookupErrorKind]int)
	if batch == nil {
		return counts
	}
	for _, item := range batch.Items {
		if item.Error != nil {
			counts[item.Error.Kind]++
		}
	}
	return counts
}
