package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dailyaed/internal/config"
	"dailyaed/internal/core"
	gsheet "dailyaed/internal/sheets/google"
	"dailyaed/internal/worker"
)

func newSyncCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "sync [date]",
		Short: "Push records to the Google Sheets mirror",
		Long:  "Push one day (default today) of --account to the spreadsheet, or with --pending every record not yet mirrored.",
		Args:  cobra.MaximumNArgs(1),
		BoolFlags: []BoolFlag{
			{Name: "pending", Usage: "process all pending records instead of one day"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args, 0)
			if err != nil {
				return err
			}
			pending, _ := cmd.Flags().GetBool("pending")
			account, _ := cmd.Flags().GetString("account")

			return withApp(cmd, d, func(ctx context.Context, app *App) error {
				mirror, err := OpenMirror(ctx, app.Config)
				if err != nil {
					return err
				}
				w := worker.NewSyncWorker(app.Backend.Store, mirror, app.Config.SyncBatchSize)
				if date.IsZero() {
					date = app.Records.For(account, nil).Today()
				}
				return runSync(ctx, cmd.OutOrStdout(), w, account, date, pending)
			})
		},
	}.Build()
}

// OpenMirror connects to the configured spreadsheet.
func OpenMirror(ctx context.Context, cfg *config.Config) (*gsheet.Client, error) {
	if !cfg.SheetsEnabled() {
		return nil, fmt.Errorf("no spreadsheet configured; set GOOGLE_SPREADSHEET_ID")
	}
	return gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
}

func runSync(ctx context.Context, w io.Writer, sw *worker.SyncWorker, account string, date core.Date, pending bool) error {
	if pending {
		n, err := sw.ProcessPendingRecords(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Synced %d pending records\n", n)
		return nil
	}

	if err := sw.SyncDay(ctx, account, date); err != nil {
		return err
	}
	fmt.Fprintf(w, "Synced %s for %s\n", date, account)
	return nil
}
