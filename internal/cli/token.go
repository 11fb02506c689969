package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dailyaed/internal/auth"
)

func newTokenCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long:  "Issue a bearer token for --account, signed with JWT_SECRET.",
		Args:  cobra.NoArgs,
		StrFlags: []StringFlag{
			{Name: "subject", Usage: "token subject (default: the account id)"},
			{Name: "ttl", Usage: "token lifetime", Default: "720h"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ttlFlag, _ := cmd.Flags().GetString("ttl")
			ttl, err := time.ParseDuration(ttlFlag)
			if err != nil || ttl <= 0 {
				return fmt.Errorf("invalid --ttl value %q: expected a positive duration such as 24h", ttlFlag)
			}
			account, _ := cmd.Flags().GetString("account")
			subject, _ := cmd.Flags().GetString("subject")

			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			return runToken(cmd.OutOrStdout(), []byte(cfg.JWTSecret), account, subject, ttl, d.now())
		},
	}.Build()
}

func runToken(w io.Writer, secret []byte, account, subject string, ttl time.Duration, now time.Time) error {
	if len(secret) == 0 {
		return fmt.Errorf("JWT_SECRET is not set; the server runs in single-account mode and needs no token")
	}
	if subject == "" {
		subject = account
	}
	token, err := auth.IssueJWT(account, subject, ttl, secret, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
