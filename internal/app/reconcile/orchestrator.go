// Package reconcile drives fetch, merge, detect and aggregate across the
// tracked wallets.
//
// A pass:
//  1. Fetches balance and transfers for every wallet, a bounded number at a time
//  2. Merges normalised transfers into the ledger store (serialized by the store)
//  3. Waits for every wallet to settle
//  4. Detects duplicates over the full ledger and applies review decisions
//  5. Aggregates stats
//
// A wallet that fails to fetch is reported in the pass result and never
// aborts the others. A pass ignores cancellation of the caller's context:
// once started it always runs to completion.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tronledger/tronledger/internal/app/duplicate"
	"github.com/tronledger/tronledger/internal/app/ledger"
	"github.com/tronledger/tronledger/internal/app/stats"
	"github.com/tronledger/tronledger/internal/app/wallet"
	"github.com/tronledger/tronledger/internal/domain"
	"github.com/tronledger/tronledger/internal/infra/observability"
)

// Operation names used in failures, spans and metrics.
const (
	OpFetchBalance   = "fetch_balance"
	OpFetchTransfers = "fetch_transfers"
	OpSaveLedger     = "save_ledger"
	OpSaveWallet     = "save_wallet"
)

// Config controls orchestrator behavior.
type Config struct {
	Concurrency   int // wallets fetched at once (default: 4)
	TransferLimit int // transfers requested per wallet (default: 50)
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		TransferLimit: 50,
	}
}

// WalletFailure is the out-of-band notice for one wallet that did not fully
// sync during a pass.
type WalletFailure struct {
	WalletID string `json:"wallet_id"`
	Address  string `json:"address"`
	Op       string `json:"op"`
	Err      string `json:"error"`
}

// Report is the result of one pass.
type Report struct {
	Stats       domain.Stats              `json:"stats"`
	Clusters    []domain.DuplicateCluster `json:"clusters"`
	Failures    []WalletFailure           `json:"failures,omitempty"`
	Inserted    int                       `json:"inserted"`
	Conflicts   int                       `json:"conflicts"`
	Malformed   int                       `json:"malformed"`
	TraceID     string                    `json:"trace_id,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at"`
}

// Partial reports whether any wallet failed during the pass.
func (r Report) Partial() bool { return len(r.Failures) > 0 }

// Orchestrator runs reconciliation passes. Passes are serialized.
type Orchestrator struct {
	cfg     Config
	source  domain.TransferSource
	store   *ledger.Store
	wallets *wallet.Registry
	review  *duplicate.Review
	tracer  *observability.Tracer
	log     logrus.FieldLogger
	now     func() time.Time

	passMu sync.Mutex

	mu   sync.RWMutex
	last *Report
}

// New creates an orchestrator. tracer may be nil.
func New(cfg Config, source domain.TransferSource, store *ledger.Store, wallets *wallet.Registry,
	review *duplicate.Review, tracer *observability.Tracer, log logrus.FieldLogger) *Orchestrator {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.TransferLimit <= 0 {
		cfg.TransferLimit = def.TransferLimit
	}
	return &Orchestrator{
		cfg:     cfg,
		source:  source,
		store:   store,
		wallets: wallets,
		review:  review,
		tracer:  tracer,
		log:     log.WithField("component", "reconcile"),
		now:     time.Now,
	}
}

// ReconcileAll runs a pass over every tracked wallet.
func (o *Orchestrator) ReconcileAll(ctx context.Context) Report {
	return o.Reconcile(ctx, o.wallets.List())
}

// ReconcileWallet runs a pass over the single wallet id.
func (o *Orchestrator) ReconcileWallet(ctx context.Context, id string) (Report, error) {
	w, err := o.wallets.Get(id)
	if err != nil {
		return Report{}, err
	}
	return o.Reconcile(ctx, []domain.Wallet{w}), nil
}

// Reconcile runs one pass over targets. Detection and aggregation always
// cover the whole ledger and every tracked wallet.
func (o *Orchestrator) Reconcile(ctx context.Context, targets []domain.Wallet) Report {
	return o.run(ctx, "reconcile", targets, true)
}

// RefreshBalances runs a pass that fetches balances only. The ledger is
// not touched; detection and aggregation run as for a full pass.
func (o *Orchestrator) RefreshBalances(ctx context.Context) Report {
	return o.run(ctx, "refresh_balances", o.wallets.List(), false)
}

func (o *Orchestrator) run(ctx context.Context, op string, targets []domain.Wallet, transfers bool) Report {
	ctx = context.WithoutCancel(ctx)

	o.passMu.Lock()
	defer o.passMu.Unlock()

	start := o.now()
	ctx, span := o.tracer.StartSpan(ctx, op, map[string]string{
		"wallets": fmt.Sprint(len(targets)),
	})

	p := &pass{balanceFailed: make(map[string]bool)}
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, w := range targets {
		g.Go(func() error {
			o.syncWallet(ctx, w, p, transfers)
			return nil
		})
	}
	_ = g.Wait() // barrier: every wallet has settled

	rep := o.evaluate(p.balanceFailed)
	rep.Failures = p.failures
	rep.Inserted = p.inserted
	rep.Conflicts = p.conflicts
	rep.Malformed = p.malformed
	rep.TraceID = span.TraceID
	rep.StartedAt = start.UTC()
	rep.CompletedAt = o.now().UTC()

	var passErr error
	outcome := "ok"
	if rep.Partial() {
		outcome = "partial"
		passErr = fmt.Errorf("%d wallet operation(s) failed", len(rep.Failures))
	}
	o.tracer.EndSpan(span, passErr)
	observability.ReconcilePasses.WithLabelValues(outcome).Inc()
	observability.ReconcileDuration.Observe(rep.CompletedAt.Sub(rep.StartedAt).Seconds())

	o.log.WithFields(logrus.Fields{
		"op":         op,
		"trace":      span.TraceID,
		"wallets":    len(targets),
		"inserted":   rep.Inserted,
		"conflicts":  rep.Conflicts,
		"failures":   len(rep.Failures),
		"duplicates": rep.Stats.DuplicateCount,
	}).Info("reconcile pass complete")

	o.mu.Lock()
	o.last = &rep
	o.mu.Unlock()
	return rep
}

// Evaluate runs detection and aggregation over the current ledger and
// wallets without fetching. Used at startup and after local edits. It waits
// for a pass in progress so it never sees a partly merged ledger.
func (o *Orchestrator) Evaluate() Report {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	rep := o.evaluate(nil)
	rep.CompletedAt = o.now().UTC()
	return rep
}

// Snapshot returns the most recent pass with wallet totals and review state
// brought up to date: wallets added or removed since the pass count as they
// are now, and decisions made since apply. A wallet whose balance fetch
// failed in that pass still contributes zero. Without a pass it evaluates
// the stored ledger.
func (o *Orchestrator) Snapshot() Report {
	rep, ok := o.Last()
	if !ok {
		return o.Evaluate()
	}

	failed := make(map[string]bool)
	for _, f := range rep.Failures {
		if f.Op == OpFetchBalance {
			failed[f.WalletID] = true
		}
	}
	wallets := o.wallets.List()
	for i, w := range wallets {
		if failed[w.ID] {
			wallets[i].Balance.Valid = false
		}
	}
	rep.Stats.TotalBalance, rep.Stats.ActiveWalletCount = stats.WalletTotals(wallets)

	rep.Clusters = o.review.Current("")
	rep.Stats.DuplicateCount = len(rep.Clusters)
	rep.Stats.PendingDuplicateCount, _ = duplicate.Counts(rep.Clusters)
	return rep
}

// Last returns the most recent pass, if any.
func (o *Orchestrator) Last() (Report, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Report{}, false
	}
	return *o.last, true
}

// ─── internal ───────────────────────────────────────────────────────────────

// pass collects per-wallet outcomes. Wallet goroutines write to it
// concurrently.
type pass struct {
	mu            sync.Mutex
	failures      []WalletFailure
	balanceFailed map[string]bool
	inserted      int
	conflicts     int
	malformed     int
}

func (p *pass) fail(w domain.Wallet, op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, WalletFailure{
		WalletID: w.ID,
		Address:  w.Address,
		Op:       op,
		Err:      err.Error(),
	})
	if op == OpFetchBalance {
		p.balanceFailed[w.ID] = true
	}
}

func (o *Orchestrator) syncWallet(ctx context.Context, w domain.Wallet, p *pass, transfers bool) {
	log := o.log.WithFields(logrus.Fields{
		"wallet":  w.ID,
		"address": w.Address,
		"trace":   observability.TraceIDFromContext(ctx),
	})
	attrs := func() map[string]string { return map[string]string{"wallet": w.ID} }

	// Balance
	bctx, bspan := o.tracer.StartSpan(ctx, OpFetchBalance, attrs())
	snap, err := o.source.FetchBalance(bctx, w.Address)
	o.tracer.EndSpan(bspan, err)
	if err != nil {
		observability.FetchFailures.WithLabelValues(OpFetchBalance).Inc()
		log.WithError(err).WithField("op", OpFetchBalance).Warn("wallet sync failed")
		p.fail(w, OpFetchBalance, err)
	} else if err := o.wallets.RecordSync(ctx, w.ID, snap); err != nil {
		log.WithError(err).WithField("op", OpSaveWallet).Warn("wallet sync not saved")
		p.fail(w, OpSaveWallet, err)
	}

	if !transfers {
		return
	}

	// Transfers
	tctx, tspan := o.tracer.StartSpan(ctx, OpFetchTransfers, attrs())
	raws, err := o.source.FetchTransfers(tctx, w.Address, o.cfg.TransferLimit)
	o.tracer.EndSpan(tspan, err)
	if err != nil {
		observability.FetchFailures.WithLabelValues(OpFetchTransfers).Inc()
		log.WithError(err).WithField("op", OpFetchTransfers).Warn("wallet sync failed")
		p.fail(w, OpFetchTransfers, err)
		return
	}

	recs := make([]domain.TransactionRecord, 0, len(raws))
	malformed := 0
	for _, raw := range raws {
		r, err := domain.NormalizeTransfer(raw, w.Address)
		if err != nil {
			malformed++
			observability.MalformedTransfers.Inc()
			log.WithError(err).Warn("skipping transfer")
			continue
		}
		recs = append(recs, r)
	}

	res, err := o.store.Merge(ctx, recs)
	if err != nil {
		log.WithError(err).WithField("op", OpSaveLedger).Error("ledger not saved")
		p.fail(w, OpSaveLedger, err)
	}
	observability.RecordsMerged.Add(float64(res.Inserted))
	observability.HashConflicts.Add(float64(len(res.Conflicts)))

	p.mu.Lock()
	p.inserted += res.Inserted
	p.conflicts += len(res.Conflicts)
	p.malformed += malformed
	p.mu.Unlock()
}

// evaluate detects, applies decisions and aggregates. Wallets whose balance
// fetch failed this pass contribute zero balance.
func (o *Orchestrator) evaluate(balanceFailed map[string]bool) Report {
	records := o.store.All()
	wallets := o.wallets.List()
	for i, w := range wallets {
		if balanceFailed[w.ID] {
			wallets[i].Balance.Valid = false
		}
	}

	clusters := o.review.Apply(duplicate.Detect(records))
	st := stats.AggregateWith(records, wallets, clusters)
	pending, legitimate := duplicate.Counts(clusters)
	st.PendingDuplicateCount = pending

	observability.LedgerSize.Set(float64(len(records)))
	observability.DuplicateClusters.WithLabelValues(string(domain.ClusterPending)).Set(float64(pending))
	observability.DuplicateClusters.WithLabelValues(string(domain.ClusterLegitimate)).Set(float64(legitimate))

	return Report{Stats: st, Clusters: clusters}
}
