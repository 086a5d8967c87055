package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/congo-pay/safetext/internal/app"
	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/messages"
)

// UserOptions holds flags for the user command.
type UserOptions struct {
	*RootOptions
	Activity int
}

// NewUserCommand creates the user lookup command.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "user <phone>",
		Short: "Show the wallet registered for a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone := args[0]
			if !messages.ValidPhone(phone) {
				return WrapExitError(ExitCommandError, "invalid phone number", errors.New(phone))
			}
			cfg, err := config.Parse()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if cfg.DatabaseURL == "" {
				return WrapExitError(ExitCommandError, "invalid configuration", errors.New("DATABASE_URL must be set"))
			}

			ctx := commandContext(cmd)
			stores, err := app.OpenStores(ctx, config.Config{DatabaseURL: cfg.DatabaseURL})
			if err != nil {
				return err
			}
			defer stores.Close()

			user, err := stores.Users().FindByPhone(ctx, phone)
			if errors.Is(err, identity.ErrNotFound) {
				return WrapExitError(ExitFailure, "not registered", err)
			}
			if err != nil {
				return err
			}
			printUser(opts, user)

			if opts.Activity > 0 {
				entries, err := stores.Journal().ListByPhone(ctx, phone, opts.Activity)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(opts.Out, "%s  %-9s %s %s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, e.TxHash.Hex(), e.Amount)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Activity, "activity", 0, "also list this many recent relayed transactions")
	return cmd
}

func printUser(opts *UserOptions, user identity.User) {
	fmt.Fprintf(opts.Out, "phone:       %s\n", user.Phone)
	fmt.Fprintf(opts.Out, "owner:       %s\n", user.OwnerAddress.Hex())
	fmt.Fprintf(opts.Out, "safe:        %s\n", user.WalletAddress.Hex())
	fmt.Fprintf(opts.Out, "deployed by: %s\n", user.DeployedBy.Hex())
	fmt.Fprintf(opts.Out, "registered:  %s\n", user.CreatedAt.Format(time.RFC3339))
}
