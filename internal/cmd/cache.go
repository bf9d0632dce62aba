package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/formscout/formscout/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the lookup result cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached lookup results",
	RunE: func(cmd *cobra.Command, args []string) error {
		expiredOnly, err := cmd.Flags().GetBool("expired")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			return loadConfigError(err)
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		removed, err := db.PurgeCache(ctx, expiredOnly)
		if err != nil {
			return err
		}
		remaining, err := db.CountCachedResults(ctx)
		if err != nil {
			return err
		}

		scope := "all entries"
		if expiredOnly {
			scope = "expired entries"
		}
		lines := []string{
			"Cache Purge",
			"",
			fmt.Sprintf("Scope:     %s", scope),
			fmt.Sprintf("Removed:   %d", removed),
			fmt.Sprintf("Remaining: %d", remaining),
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func init() {
	cachePurgeCmd.Flags().Bool("expired", false, "Only delete entries past their expiry")
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
