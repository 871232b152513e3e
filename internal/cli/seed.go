package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gibiertrace/internal/core"
	"gibiertrace/pkg/domain"
)

// seedFile is the YAML document loaded by the seed command.
type seedFile struct {
	Users    []domain.User   `yaml:"users"`
	Entities []domain.Entity `yaml:"entities"`
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load users and entities used to resolve notification recipients",
		Long: `Load the user and entity directory from a YAML file.

Records are upserted by id, so the command can be re-run after edits.

Example file:
  users:
    - id: u-exam
      email: exam@example.org
      roles: [EXAMINATEUR_INITIAL]
      activated: true
      notifications: [EMAIL]
  entities:
    - id: e-etg
      type: ETG
      raison_sociale: Venaison SA
      member_ids: [u-etg]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var seed seedFile
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse seed file: %w", err)
			}

			store, closeStore, err := openStore(cmd.Context(), opts.config)
			if err != nil {
				return err
			}
			svc := core.NewService(store, core.WithLogger(opts.logger))

			var errs []error
			for _, u := range seed.Users {
				if err := svc.PutUser(cmd.Context(), u); err != nil {
					errs = append(errs, fmt.Errorf("user %q: %w", u.ID, err))
				}
			}
			for _, e := range seed.Entities {
				if err := svc.PutEntity(cmd.Context(), e); err != nil {
					errs = append(errs, fmt.Errorf("entity %q: %w", e.ID, err))
				}
			}
			errs = append(errs, closeStore())
			if err := errors.Join(errs...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d entities\n", len(seed.Users), len(seed.Entities))
			return err
		},
	}
}
