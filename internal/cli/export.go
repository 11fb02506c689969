package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dailyaed/internal/core"
	"dailyaed/internal/export"
	"dailyaed/internal/services"
)

func newExportCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "export <month>",
		Short: "Write a monthly statement as XLSX or PDF",
		Args:  cobra.ExactArgs(1),
		StrFlags: []StringFlag{
			{Name: "format", Usage: "xlsx or pdf", Default: string(export.FormatXLSX)},
			{Name: "out", Usage: "output file (default dailyaed-YYYY-MM.<format>)"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := core.ParseMonth(args[0])
			if err != nil {
				return fmt.Errorf("invalid month %q: expected YYYY-MM", args[0])
			}
			formatFlag, _ := cmd.Flags().GetString("format")
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")

			return withApp(cmd, d, func(ctx context.Context, app *App) error {
				acc, err := accountFor(cmd, app)
				if err != nil {
					return err
				}
				return runExport(ctx, cmd.OutOrStdout(), acc, month, format, out, d.now(), app.Config.ExportOptions()...)
			})
		},
	}.Build()
}

func runExport(ctx context.Context, w io.Writer, acc *services.AccountRecords, month core.Date, format export.Format, out string, now time.Time, opts ...export.Option) error {
	days, summary, err := acc.MonthRecords(ctx, month)
	if err != nil {
		return err
	}

	stmt := export.Statement{
		AccountID:   acc.AccountID(),
		Month:       month,
		Summary:     summary,
		Days:        days,
		GeneratedAt: now,
	}
	body, err := export.Build(stmt, format, opts...)
	if err != nil {
		return err
	}

	if out == "" {
		out = stmt.Filename(format)
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s statement for %s to %s (%d days)\n",
		format, month.Format(core.MonthLayout), out, len(days))
	return nil
}
