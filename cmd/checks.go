package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/siteaudit/internal/checks"
)

// newChecksCmd lists the registered checks in run order without touching the
// network or any report sink.
func newChecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List registered checks in run order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			reg := checks.NewEnv(checks.Deps{}, checks.SettingsFromConfig(s.cfg), s.logger).Registry()
			out := cmd.OutOrStdout()
			for i, r := range reg {
				state := "enabled"
				if slices.Contains(s.cfg.Checks.Disabled, r.Name) {
					state = "disabled"
				}
				fmt.Fprintf(out, "%2d  %-28s %-5s %s\n", i+1, r.Name, r.Input, state)
			}
			return nil
		},
	}
}
