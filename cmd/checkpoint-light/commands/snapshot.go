package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write a snapshot of the trusted store to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, trustedStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeDB(db, a)

			var buf bytes.Buffer
			if err := trustedStore.Export(&buf); err != nil {
				return err
			}
			n := buf.Len()
			if _, err := atomicfile.WriteAll(args[0], &buf, 0600); err != nil {
				return fmt.Errorf("can't write snapshot: %w", err)
			}
			a.logger.Info("exported trusted store", "path", args[0], "bytes", n, "committees", trustedStore.Size())
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a snapshot written by export into an empty trusted store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			db, trustedStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeDB(db, a)

			if err := trustedStore.Import(f); err != nil {
				return fmt.Errorf("can't import %s: %w", args[0], err)
			}
			a.logger.Info("imported trusted store", "path", args[0], "committees", trustedStore.Size())
			return nil
		},
	}
}
