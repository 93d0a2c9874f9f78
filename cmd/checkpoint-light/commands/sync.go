package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tendermint/checkpoint-light/light"
)

func newSyncCmd(a *app) *cobra.Command {
	var target uint64

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Verify and apply checkpoints from the archive",
		Long: `Verify and apply checkpoints from the archive.

Checkpoints are fetched in parallel and applied strictly in order. Without
--target the client keeps following the archive until interrupted. Any
checkpoint failing verification stops the sync: the archive serves a chain
this client can't follow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.sync(ctx, target)
		},
	}
	cmd.Flags().Uint64Var(&target, "target", 0, "stop once this sequence number is trusted (0: follow forever)")
	return cmd
}

func (a *app) sync(ctx context.Context, target uint64) error {
	db, trustedStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB(db, a)

	metrics := light.NopMetrics()
	if a.conf.Instrumentation.Prometheus {
		metrics = light.PrometheusMetrics(a.conf.Instrumentation.Namespace)
		srv := a.startPrometheusServer()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.logger.Error("stopping prometheus server", "err", err)
			}
		}()
	}

	tracker, err := a.loadTracker(trustedStore, metrics)
	if err != nil {
		return err
	}
	p, err := a.newProvider()
	if err != nil {
		return err
	}

	cfg := a.conf.Sync
	syncer, err := light.NewSyncer(tracker, p,
		light.SyncLogger(a.logger.With("module", "sync")),
		light.SyncMetrics(metrics),
		light.FetchConcurrency(cfg.FetchConcurrency),
		light.MaxRetries(cfg.MaxRetries),
		light.RetryBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		light.PollInterval(cfg.PollInterval),
		light.SyncTarget(target),
	)
	if err != nil {
		return err
	}

	if err := syncer.Start(ctx); err != nil {
		return err
	}
	syncer.Wait()

	state := tracker.TrustedState()
	a.logger.Info("sync stopped",
		"sequence", state.Checkpoint.SequenceNumber,
		"epoch", state.Committee.Epoch,
		"digest", state.Checkpoint.Digest())
	return syncer.Err()
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on the configured address.
func (a *app) startPrometheusServer() *http.Server {
	cfg := a.conf.Instrumentation
	srv := &http.Server{
		Addr: cfg.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			a.logger.Error("prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}
