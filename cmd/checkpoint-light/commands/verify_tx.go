package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tendermint/checkpoint-light/light"
	"github.com/tendermint/checkpoint-light/types"
)

func newVerifyTxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-tx <sequence> <tx-digest> <effects-digest>",
		Short: "Check that a transaction and its effects are committed by a checkpoint",
		Long: `Check that a transaction and its effects are committed by a checkpoint.

The checkpoint is fetched from the archive. It must be trusted already, or be
older than the trusted checkpoint with the committee of its epoch still in the
store. When the archive also carries the effects and events of the
transaction, they are checked against the committed digests and printed with
the result. The result is printed as JSON; the command fails unless the
transaction is included with exactly the given effects.`,
		Example: `checkpoint-light verify-tx 1042 \
	9C1F0D...E2 \
	41AA07...7B`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence number: %w", err)
			}
			tx, err := types.DigestFromHex(args[1])
			if err != nil {
				return fmt.Errorf("invalid transaction digest: %w", err)
			}
			effects, err := types.DigestFromHex(args[2])
			if err != nil {
				return fmt.Errorf("invalid effects digest: %w", err)
			}

			db, trustedStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeDB(db, a)

			tracker, err := a.loadTracker(trustedStore, light.NopMetrics())
			if err != nil {
				return err
			}
			p, err := a.newProvider()
			if err != nil {
				return err
			}

			data, err := p.CheckpointData(cmd.Context(), seq)
			if err != nil {
				return fmt.Errorf("fetching checkpoint %d: %w", seq, err)
			}
			res, err := tracker.VerifyTransaction(data, tx, effects)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Included() {
				return fmt.Errorf("transaction %v: %v", tx, res.Status)
			}
			return nil
		},
	}
}
