package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tronledger/tronledger/internal/api"
	"github.com/tronledger/tronledger/internal/app/reconcile"
)

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background sync",
	Long: `Start the local HTTP API. When [sync].auto_sync is on, every tracked
wallet is reconciled immediately and then once per [sync].interval.
A pass that is running when the server stops is allowed to finish.`,
	RunE: withApp(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-sync", false, "Disable background sync for this run")
}

func runServe(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	noSync, _ := cmd.Flags().GetBool("no-sync")

	svc := api.Services{
		Store:   a.store,
		Wallets: a.wallets,
		Review:  a.review,
		Orch:    a.orch,
		Tracer:  a.tracer,
	}

	var wg sync.WaitGroup
	if a.cfg.Sync.AutoSync && !noSync {
		sched := reconcile.NewScheduler(a.orch, a.cfg.SyncInterval(), a.log)
		svc.Scheduler = sched
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	srv := api.NewServer(svc, a.log)
	if a.cfg.API.Metrics {
		srv.EnableMetrics()
	}
	httpSrv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", httpSrv.Addr).Info("api listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("api shutdown")
		}
	}

	wg.Wait()
	a.log.Info("shutdown complete")
	return nil
}
