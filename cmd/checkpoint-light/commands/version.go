package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/checkpoint-light/version"
)

const versionCmdName = "version"

func newVersionCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   versionCmdName,
		Short: "Show version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return err
			}
			return printJSON(cmd, struct {
				Client        string `json:"client"`
				WireProtocol  uint64 `json:"wire_protocol"`
				StoreProtocol uint64 `json:"store_protocol"`
			}{
				Client:        version.Version,
				WireProtocol:  version.WireProtocol.Uint64(),
				StoreProtocol: version.StoreProtocol.Uint64(),
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
	return cmd
}
