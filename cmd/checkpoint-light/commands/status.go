package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/checkpoint-light/types"
)

type committeeInfo struct {
	Epoch      uint64       `json:"epoch"`
	Size       int          `json:"size"`
	TotalStake uint64       `json:"total_stake"`
	Hash       types.Digest `json:"hash"`
}

type statusInfo struct {
	Sequence         uint64        `json:"sequence"`
	Epoch            uint64        `json:"epoch"`
	Digest           types.Digest  `json:"digest"`
	TimestampMs      uint64        `json:"timestamp_ms"`
	EpochBoundary    bool          `json:"epoch_boundary"`
	Committee        committeeInfo `json:"committee"`
	StoredCommittees uint64        `json:"stored_committees"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the trusted state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, trustedStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeDB(db, a)

			state, err := trustedStore.TrustedState()
			if err != nil {
				return fmt.Errorf("%w; run init first", err)
			}

			info := statusInfo{
				Sequence:      state.Checkpoint.SequenceNumber,
				Epoch:         state.Checkpoint.Epoch,
				Digest:        state.Checkpoint.Digest(),
				TimestampMs:   state.Checkpoint.TimestampMs,
				EpochBoundary: state.Checkpoint.IsEpochBoundary(),
				Committee: committeeInfo{
					Epoch:      state.Committee.Epoch,
					Size:       state.Committee.Size(),
					TotalStake: state.Committee.TotalStake(),
					Hash:       state.Committee.Hash(),
				},
				StoredCommittees: trustedStore.Size(),
			}
			return printJSON(cmd, info)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return err
}
