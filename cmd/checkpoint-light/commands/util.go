package commands

import (
	"errors"
	"fmt"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/checkpoint-light/config"
	"github.com/tendermint/checkpoint-light/light"
	"github.com/tendermint/checkpoint-light/light/provider"
	"github.com/tendermint/checkpoint-light/light/provider/file"
	lighthttp "github.com/tendermint/checkpoint-light/light/provider/http"
	"github.com/tendermint/checkpoint-light/light/store"
	dbs "github.com/tendermint/checkpoint-light/light/store/db"
	"github.com/tendermint/checkpoint-light/types"
)

const (
	primaryFlag = "primary"

	dbName   = "light"
	dbPrefix = "checkpoint-light"
)

// openStore opens the trusted store in the configured database. The caller
// must close the returned DB.
func (a *app) openStore() (dbm.DB, store.Store, error) {
	db, err := config.DefaultDBProvider(&config.DBContext{ID: dbName, Config: a.conf})
	if err != nil {
		return nil, nil, fmt.Errorf("can't open the database: %w", err)
	}
	return db, dbs.New(db, dbPrefix), nil
}

// loadTracker resumes from the trusted state in the store or, on first use,
// anchors at the configured genesis.
func (a *app) loadTracker(trustedStore store.Store, metrics *light.Metrics) (*light.Tracker, error) {
	quorum, err := a.conf.Light.Quorum()
	if err != nil {
		return nil, err
	}
	options := []light.Option{
		light.Logger(a.logger.With("module", "light")),
		light.QuorumThreshold(quorum),
		light.PruningHorizon(a.conf.Light.PruningHorizon),
		light.WithMetrics(metrics),
	}

	tracker, err := light.NewTrackerFromStore(trustedStore, options...)
	if !errors.Is(err, store.ErrNoTrustedState) {
		return tracker, err
	}

	genesis, err := types.GenesisFromFile(a.conf.GenesisFile())
	if err != nil {
		return nil, err
	}
	a.logger.Info("starting from genesis", "chain_id", genesis.ChainID, "file", a.conf.GenesisFile())
	return light.NewTracker(genesis.TrustedState(), trustedStore, options...)
}

// newProvider returns a provider for the configured checkpoint archive.
func (a *app) newProvider() (provider.Provider, error) {
	cfg := a.conf.Sync
	switch {
	case cfg.Primary == "":
		return nil, fmt.Errorf("no checkpoint archive configured; set sync.primary or use --%s", primaryFlag)
	case cfg.IsRemote():
		return lighthttp.New(cfg.Primary)
	default:
		return file.New(cfg.PrimaryPath())
	}
}

func closeDB(db dbm.DB, a *app) {
	if err := db.Close(); err != nil {
		a.logger.Error("closing the database", "err", err)
	}
}
