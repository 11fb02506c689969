package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dailyaed/internal/core"
	"dailyaed/internal/records"
	"dailyaed/internal/services"
)

func newDayCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "day [date]",
		Short: "Show income, expenses, profit and notes of a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args, 0)
			if err != nil {
				return err
			}
			return withAccount(cmd, d, func(ctx context.Context, acc *services.AccountRecords) error {
				return runDay(ctx, cmd.OutOrStdout(), acc, date)
			})
		},
	}.Build()
}

func runDay(ctx context.Context, w io.Writer, acc *services.AccountRecords, date core.Date) error {
	rec, err := acc.GetDailyRecord(ctx, date)
	if err != nil {
		return err
	}
	printRecord(w, rec)
	return nil
}

func newMonthCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "month [date]",
		Short: "Show the totals of the month containing date",
		Long:  "Show the totals of a month. date may be YYYY-MM or any YYYY-MM-DD in the month.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var month core.Date
			if len(args) > 0 {
				m, err := core.ParseMonth(args[0])
				if err != nil {
					return fmt.Errorf("invalid month %q: expected YYYY-MM or YYYY-MM-DD", args[0])
				}
				month = m
			}
			return withAccount(cmd, d, func(ctx context.Context, acc *services.AccountRecords) error {
				return runMonth(ctx, cmd.OutOrStdout(), acc, month)
			})
		},
	}.Build()
}

func runMonth(ctx context.Context, w io.Writer, acc *services.AccountRecords, month core.Date) error {
	agg, err := acc.GetMonthlyAggregate(ctx, month)
	if err != nil {
		return err
	}
	printMonth(w, agg)
	return nil
}

func newSaveCmd(d deps, field string) *cobra.Command {
	return LeafCommand{
		Use:   field + " <amount>",
		Short: "Set the " + field + " of a day (default today)",
		Args:  cobra.ExactArgs(1),
		StrFlags: []StringFlag{
			{Name: "date", Usage: "day to update, YYYY-MM-DD"},
			{Name: "notes", Usage: "replace the notes of the day"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return core.Invalid(field, err)
			}
			dateFlag, _ := cmd.Flags().GetString("date")
			date, err := dateArg([]string{dateFlag}, 0)
			if err != nil {
				return err
			}
			entry := records.Entry{Date: date, Amount: amount}
			if cmd.Flags().Changed("notes") {
				notes, _ := cmd.Flags().GetString("notes")
				entry.Notes = &notes
			}
			return withAccount(cmd, d, func(ctx context.Context, acc *services.AccountRecords) error {
				return runSave(ctx, cmd.OutOrStdout(), acc, field, entry)
			})
		},
	}.Build()
}

func runSave(ctx context.Context, w io.Writer, acc *services.AccountRecords, field string, entry records.Entry) error {
	var (
		rec core.DailyRecord
		err error
	)
	switch field {
	case core.FieldIncome:
		rec, err = acc.SaveIncome(ctx, entry)
	case core.FieldExpenses:
		rec, err = acc.SaveExpenses(ctx, entry)
	default:
		return fmt.Errorf("unknown field %q", field)
	}

	var serr *records.SaveError
	if errors.As(err, &serr) {
		return fmt.Errorf("%w (nothing was saved; %s %s for %s is safe to retry)",
			err, field, serr.Pending.Amount, serr.Pending.Date)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Saved %s %s AED for %s\n\n", field, entry.Amount, rec.Date)
	printRecord(w, rec)
	return nil
}

func newNotesCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "notes <text>",
		Short: "Replace the notes of a day that already has a record",
		Args:  cobra.ExactArgs(1),
		StrFlags: []StringFlag{
			{Name: "date", Usage: "day to update, YYYY-MM-DD"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dateFlag, _ := cmd.Flags().GetString("date")
			date, err := dateArg([]string{dateFlag}, 0)
			if err != nil {
				return err
			}
			return withAccount(cmd, d, func(ctx context.Context, acc *services.AccountRecords) error {
				return runNotes(ctx, cmd.OutOrStdout(), acc, date, args[0])
			})
		},
	}.Build()
}

func runNotes(ctx context.Context, w io.Writer, acc *services.AccountRecords, date core.Date, notes string) error {
	if date.IsZero() {
		date = acc.Today()
	}
	updated, err := acc.SaveNotes(ctx, date, notes)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("no record for %s; save income or expenses first", date)
	}
	fmt.Fprintf(w, "Notes updated for %s\n", date)
	return nil
}

func newSummaryCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "summary [date]",
		Short: "Show a day together with its month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args, 0)
			if err != nil {
				return err
			}
			return withAccount(cmd, d, func(ctx context.Context, acc *services.AccountRecords) error {
				return runSummary(ctx, cmd.OutOrStdout(), records.NewViewer(acc), acc, date)
			})
		},
	}.Build()
}

func runSummary(ctx context.Context, w io.Writer, v *records.Viewer, acc *services.AccountRecords, date core.Date) error {
	if date.IsZero() {
		date = acc.Today()
	}
	view, err := v.Select(ctx, date)
	if err != nil {
		return err
	}
	printRecord(w, view.Record)
	fmt.Fprintln(w)
	printMonth(w, view.Month)
	return nil
}
