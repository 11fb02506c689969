package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dailyaed/internal/auth"
	"dailyaed/internal/config"
	"dailyaed/internal/core"
	applog "dailyaed/internal/log"
	"dailyaed/internal/services"
)

// deps are the seams the command tree reaches the outside world through.
type deps struct {
	loadConfig func() (*config.Config, error)
	now        func() time.Time
}

func defaultDeps() deps {
	return deps{
		loadConfig: func() (*config.Config, error) {
			LoadEnvFile()
			return LoadConfig()
		},
		now: time.Now,
	}
}

// Execute runs dailyaedctl with os.Args.
func Execute() error {
	root := newRootCmd(defaultDeps())
	root.SilenceErrors = true
	err := root.Execute()
	if err != nil {
		stderr := root.ErrOrStderr()
		fmt.Fprintln(stderr, paletteFor(stderr).Error("Error: "+err.Error()))
	}
	return err
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:          "dailyaedctl",
		Short:        "Record and review daily income and expenses in AED",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("account", auth.LocalAccount, "account to operate on")
	root.PersistentFlags().String("tz", "", "IANA timezone used for \"today\" (default: configured timezone)")

	root.AddCommand(
		newDayCmd(d),
		newMonthCmd(d),
		newSaveCmd(d, core.FieldIncome),
		newSaveCmd(d, core.FieldExpenses),
		newNotesCmd(d),
		newSummaryCmd(d),
		newExportCmd(d),
		newTokenCmd(d),
		newMigrateCmd(d),
		newSyncCmd(d),
	)
	return root
}

// cliLogger writes warnings and errors to w so command output stays clean.
func cliLogger(w io.Writer, level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = applog.ComponentCLI
	cfg.Output = w
	cfg.Level = applog.ParseLevel(level)
	if cfg.Level < slog.LevelWarn {
		cfg.Level = slog.LevelWarn
	}
	return applog.New(cfg)
}

// withApp opens the configured backend for the duration of fn.
func withApp(cmd *cobra.Command, d deps, fn func(ctx context.Context, app *App) error) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := OpenApp(ctx, cfg, cliLogger(cmd.ErrOrStderr(), cfg.LogLevel), services.WithClock(d.now))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			stderr := cmd.ErrOrStderr()
			fmt.Fprintln(stderr, paletteFor(stderr).Warning("warning: "+cerr.Error()))
		}
	}()
	return fn(ctx, app)
}

// withAccount is withApp narrowed to the --account and --tz flags.
func withAccount(cmd *cobra.Command, d deps, fn func(ctx context.Context, acc *services.AccountRecords) error) error {
	return withApp(cmd, d, func(ctx context.Context, app *App) error {
		acc, err := accountFor(cmd, app)
		if err != nil {
			return err
		}
		return fn(ctx, acc)
	})
}

// accountFor resolves the --account and --tz flags against app.
func accountFor(cmd *cobra.Command, app *App) (*services.AccountRecords, error) {
	account, _ := cmd.Flags().GetString("account")
	tz, _ := cmd.Flags().GetString("tz")

	var loc *time.Location
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid --tz %q: %w", tz, err)
		}
		loc = l
	}
	if account == "" {
		return nil, fmt.Errorf("--account must not be empty")
	}
	return app.Records.For(account, loc), nil
}

// dateArg parses args[i] when present; absent or "today" means the zero
// date, which the record operations resolve to today.
func dateArg(args []string, i int) (core.Date, error) {
	if len(args) <= i || args[i] == "" || args[i] == "today" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(args[i])
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", args[i])
	}
	return d, nil
}
