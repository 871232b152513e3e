package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gibiertrace/internal/blob"
	"gibiertrace/internal/core"
)

func newBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Export the store snapshot to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, opts.config)
			if err != nil {
				return err
			}
			blobs, err := blob.Open(ctx, opts.config.Blob)
			if err != nil {
				return errors.Join(fmt.Errorf("open blob store: %w", err), closeStore())
			}
			info, err := core.Backup(ctx, store, blobs, opts.config.Journal.BackupPrefix, time.Now().UTC())
			if err := errors.Join(err, closeStore()); err != nil {
				return err
			}
			opts.logger.Info("backup written", "key", info.Key, "size", info.Size)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.Key)
			return err
		},
	}
}

func newRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <key>",
		Short: "Replace the store contents with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, opts.config)
			if err != nil {
				return err
			}
			blobs, err := blob.Open(ctx, opts.config.Blob)
			if err != nil {
				return errors.Join(fmt.Errorf("open blob store: %w", err), closeStore())
			}
			if err := errors.Join(core.Restore(ctx, store, blobs, args[0]), closeStore()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
			return err
		},
	}
}
