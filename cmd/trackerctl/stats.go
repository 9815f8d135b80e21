package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-tracker-api/internal/app"
	"github.com/noah-isme/civic-tracker-api/internal/dto"
)

func statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print store counts and dashboard statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				stats, _, err := a.Admin.Stats(cmd.Context(), true)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, map[string]interface{}{
						"records": a.Store.Counts(),
						"stats":   stats,
					})
				}

				counts := a.Store.Counts()
				names := make([]string, 0, len(counts))
				for name := range counts {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "%-16s %d\n", name, counts[name])
				}
				fmt.Fprintf(out, "\napplications=%d escalated=%d solved=%d overdue=%d\n",
					stats.TotalApplications, stats.Escalated, stats.Solved, stats.Overdue)
				for _, official := range stats.Officials {
					fmt.Fprintf(out, "  %-20s %-20s rating=%.2f assigned=%d solved=%d\n",
						official.Username, official.Department, official.Rating, official.AssignedCount, official.SolvedCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render every application as CSV or PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Admin.ExportApplications(cmd.Context(), dto.ExportFormat(strings.ToLower(format)))
				if err != nil {
					return err
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
				path := filepath.Join(outDir, result.Filename)
				if err := os.WriteFile(path, result.Payload, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(dto.ExportCSV), "csv or pdf")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}
