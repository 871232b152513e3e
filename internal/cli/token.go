package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gibiertrace/internal/auth"
	"gibiertrace/pkg/domain"
)

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		userID   string
		roles    []string
		entities []string
		inactive bool
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		Example: `  gibiertrace token --user u-exam --role EXAMINATEUR_INITIAL
  gibiertrace token --user u-etg --role ETG --entity e-etg --ttl 8h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.config.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required")
			}
			authn, err := auth.New(opts.config.Auth.JWTSecret, auth.WithIssuer(opts.config.Auth.Issuer))
			if err != nil {
				return err
			}
			actor := domain.Actor{ID: userID, Activated: !inactive, EntityIDs: entities}
			for _, r := range roles {
				role := domain.Role(r)
				if !role.Valid() {
					return fmt.Errorf("unknown role %q", r)
				}
				actor.Roles = append(actor.Roles, role)
			}
			token, err := authn.Issue(actor, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role, repeatable")
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "entity the user works for, repeatable")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "issue the token for a deactivated account")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
