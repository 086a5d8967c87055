package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/congo-pay/safetext/internal/auth"
	"github.com/congo-pay/safetext/internal/config"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	TTL time.Duration
}

// NewTokenCommand creates the operator token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue an operator token for the inspection API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if cfg.JWTSecret == "" {
				return WrapExitError(ExitCommandError, "invalid configuration", errors.New("API_JWT_SECRET must be set"))
			}
			ttl := opts.TTL
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			issuer, err := auth.NewIssuer(cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			token, exp, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.Out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to API_TOKEN_TTL)")
	return cmd
}
