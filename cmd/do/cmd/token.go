package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/service"
)

func TokenCmd() *cobra.Command {
	var (
		email  string
		ttl    time.Duration
		secret string
		issuer string
	)

	cmd := &cobra.Command{
		Use:   "token <uid>",
		Short: "Issue an identity token for development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or IDENTITY_JWT_SECRET is required")
			}
			identity := service.NewIdentityService(secret, issuer)
			token, err := identity.Issue(model.Identity{UID: args[0], Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("IDENTITY_JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("IDENTITY_ISSUER"), "iss claim")
	return cmd
}
