// Package cli implements the tronledger command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tronledger/tronledger/internal/app/duplicate"
	"github.com/tronledger/tronledger/internal/app/ledger"
	"github.com/tronledger/tronledger/internal/app/reconcile"
	"github.com/tronledger/tronledger/internal/app/wallet"
	"github.com/tronledger/tronledger/internal/daemon"
	"github.com/tronledger/tronledger/internal/domain"
	"github.com/tronledger/tronledger/internal/infra/observability"
	"github.com/tronledger/tronledger/internal/infra/sqlite"
	"github.com/tronledger/tronledger/internal/infra/tron"
)

var (
	flagHome   string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "tronledger",
	Short: "Reconcile USDT-TRC20 transfers across your TRON wallets",
	Long: `tronledger tracks a set of TRON wallets, pulls their USDT-TRC20 transfers
into one local ledger, flags probable duplicate payments and reports totals.
Data lives in ~/.tronledger unless --home or TRONLEDGER_HOME says otherwise.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Data directory (default ~/.tronledger)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default <home>/config.toml)")
}

// ExecuteContext runs the root command. ctx is cancelled on interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ─── Wiring ─────────────────────────────────────────────────────────────────

// app is the fully wired process: config, storage and services.
type app struct {
	cfg     daemon.Config
	log     *logrus.Logger
	db      *sqlite.DB
	source  domain.TransferSource
	store   *ledger.Store
	wallets *wallet.Registry
	review  *duplicate.Review
	tracer  *observability.Tracer
	orch    *reconcile.Orchestrator
}

// openApp loads config, opens the database and restores persisted state.
// The returned app has already evaluated the stored ledger, so duplicate
// clusters are available before any sync.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := daemon.Load(flagHome, flagConfig)
	if err != nil {
		return nil, err
	}
	log := daemon.NewLogger(cfg.Log)

	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		source:  tron.NewClient(cfg.TronClientConfig()),
		store:   ledger.NewStore(db, log),
		wallets: wallet.NewRegistry(db, log),
		review:  duplicate.NewReview(db, log),
		tracer:  observability.NewTracer(observability.DefaultTracerConfig()),
	}
	for _, load := range []func(context.Context) error{a.store.Load, a.wallets.Load, a.review.Load} {
		if err := load(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.orch = reconcile.New(reconcile.Config{
		Concurrency:   cfg.Sync.Concurrency,
		TransferLimit: cfg.Tron.TransferLimit,
	}, a.source, a.store, a.wallets, a.review, a.tracer, log)
	a.orch.Evaluate()

	log.WithFields(logrus.Fields{
		"home":         cfg.Home,
		"db":           db.Path(),
		"transactions": a.store.Len(),
		"wallets":      len(a.wallets.List()),
	}).Debug("state restored")
	return a, nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.db.Close()
}

// withApp wraps a command body with openApp and Close.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// unsaved reports a persistence failure as a warning and passes any other
// error through. The change itself applied for this run.
func unsaved(cmd *cobra.Command, err error) error {
	if err != nil && errors.Is(err, domain.ErrPersistence) {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Not saved: %v\n", err)
		return nil
	}
	return err
}
