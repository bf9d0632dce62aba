package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/formscout/formscout/internal/advisor"
	"github.com/formscout/formscout/internal/metrics"
	"github.com/formscout/formscout/internal/output"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Ask the forms advisor which forms a realtor needs",
	Long: `Ask the forms advisor for the essential forms for a realtor's state,
or with --form-type for every form of one kind. Requires an advisor API key.`,
	Example: `  formscout discover --state California --specialization residential
  formscout discover --state Texas --form-type disclosure`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().String("state", "", "Realtor's state (required)")
	discoverCmd.Flags().String("county", "", "County for local forms")
	discoverCmd.Flags().String("license", "", "License number")
	discoverCmd.Flags().StringSlice("specialization", nil, "Practice specializations")
	discoverCmd.Flags().String("form-type", "", "Only find forms of this type")
	addOutputFlags(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	state, err := flags.GetString("state")
	if err != nil {
		return err
	}
	county, err := flags.GetString("county")
	if err != nil {
		return err
	}
	license, err := flags.GetString("license")
	if err != nil {
		return err
	}
	specializations, err := flags.GetStringSlice("specialization")
	if err != nil {
		return err
	}
	formType, err := flags.GetString("form-type")
	if err != nil {
		return err
	}

	info := advisor.RealtorInfo{
		State:           strings.TrimSpace(state),
		County:          strings.TrimSpace(county),
		LicenseNumber:   strings.TrimSpace(license),
		Specializations: specializations,
	}
	if info.State == "" {
		return advisor.ErrStateRequired
	}

	ctx := cmd.Context()
	rt, err := bootstrap(ctx, bootstrapOptions{withAdvisor: true})
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if !rt.advisor.Enabled() {
		return advisor.ErrDisabled
	}

	var suggestions []advisor.FormSuggestion
	if strings.TrimSpace(formType) != "" {
		suggestions, err = rt.advisor.FindSpecificForm(ctx, info, formType)
	} else {
		suggestions, err = rt.advisor.FindEssentialForms(ctx, info)
	}
	metrics.RecordOperation("discover", err == nil)
	if err != nil {
		return err
	}

	return writeOutput(cmd, "discover."+info.State, func(f output.Formatter) (string, error) {
		return f.FormatSuggestions(info.State, suggestions)
	})
}
