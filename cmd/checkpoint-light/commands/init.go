package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tendermint/checkpoint-light/config"
	"github.com/tendermint/checkpoint-light/light"
	"github.com/tendermint/checkpoint-light/types"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [genesis-file]",
		Short: "Initialize the home directory and the trusted store",
		Long: `Initialize the home directory and the trusted store.

The config file is written unless one exists already. If a genesis file is
given, it is validated and copied into the home directory. The genesis
committee and checkpoint are trusted as is: obtain the file out of band from a
source you trust.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.initFiles(args)
		},
	}
}

func (a *app) initFiles(args []string) error {
	root := a.conf.RootDir
	if _, err := os.Stat(config.ConfigFile(root)); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(config.ConfigFile(root)), 0700); err != nil {
			return err
		}
		if err := config.WriteConfigFile(root, a.conf); err != nil {
			return err
		}
		a.logger.Info("generated config", "path", config.ConfigFile(root))
	} else {
		a.logger.Info("found config", "path", config.ConfigFile(root))
	}
	if err := config.EnsureRoot(root); err != nil {
		return err
	}

	if len(args) == 1 {
		genesis, err := types.GenesisFromFile(args[0])
		if err != nil {
			return err
		}
		if err := genesis.SaveAs(a.conf.GenesisFile()); err != nil {
			return fmt.Errorf("can't save genesis: %w", err)
		}
		a.logger.Info("saved genesis", "chain_id", genesis.ChainID, "path", a.conf.GenesisFile())
	}

	db, trustedStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB(db, a)

	if state, err := trustedStore.TrustedState(); err == nil {
		a.logger.Info("trusted store already initialized",
			"sequence", state.Checkpoint.SequenceNumber,
			"epoch", state.Committee.Epoch)
		return nil
	}

	_, err = a.loadTracker(trustedStore, light.NopMetrics())
	return err
}
