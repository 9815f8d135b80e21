package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-tracker-api/internal/app"
)

func sweepCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one delay monitor sweep",
		Long:  "Sends delay alerts for stale applications and auto-approves the ones past their deadline, then persists the store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Monitor.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), report)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"scanned=%d delayed=%d alerts=%d suppressed=%d auto_approved=%d errors=%d duration=%s\n",
					report.Scanned, report.Delayed, report.AlertsSent, report.Suppressed,
					report.AutoApproved, report.Errors, report.Duration)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
