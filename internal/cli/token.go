package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/config"
	httpapi "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/interfaces/http"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a bearer token for a user with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			token, err := httpapi.IssueToken(httpapi.AuthConfig{
				Enabled: true,
				Secret:  cfg.Auth.JWTSecret,
				Issuer:  cfg.Auth.Issuer,
			}, args[0], ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, map[string]string{"user_id": args[0], "token": token})
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
