// Package wallet manages the set of tracked addresses.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tronledger/tronledger/internal/domain"
)

// Registry owns the wallet list and writes it through on every change.
type Registry struct {
	mu      sync.RWMutex
	repo    domain.WalletRepository
	log     logrus.FieldLogger
	wallets []domain.Wallet
	now     func() time.Time
}

// NewRegistry creates an empty registry backed by repo.
func NewRegistry(repo domain.WalletRepository, log logrus.FieldLogger) *Registry {
	return &Registry{
		repo: repo,
		log:  log.WithField("component", "wallet"),
		now:  time.Now,
	}
}

// Load replaces the in-memory list with the stored one.
func (r *Registry) Load(ctx context.Context) error {
	ws, err := r.repo.LoadWallets(ctx)
	if err != nil {
		return fmt.Errorf("load wallets: %w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	r.wallets = ws
	r.mu.Unlock()
	return nil
}

// Add starts tracking address. The nickname defaults to "Wallet N".
// A persistence failure is returned with the new wallet, which stays tracked.
func (r *Registry) Add(ctx context.Context, address, nickname string) (domain.Wallet, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Wallet{}, fmt.Errorf("address: %w", domain.ErrMissingField)
	}
	if !domain.IsValidAddress(address) {
		return domain.Wallet{}, fmt.Errorf("%q: %w", address, domain.ErrInvalidAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.wallets {
		if strings.EqualFold(w.Address, address) {
			return domain.Wallet{}, fmt.Errorf("%s: %w", address, domain.ErrWalletExists)
		}
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = fmt.Sprintf("Wallet %d", len(r.wallets)+1)
	}
	w := domain.Wallet{
		ID:        uuid.New().String(),
		Address:   address,
		Nickname:  nickname,
		CreatedAt: r.now().UTC(),
	}
	r.wallets = append(r.wallets, w)
	r.log.WithFields(logrus.Fields{"wallet": w.ID, "address": address}).Info("wallet added")
	return w, r.persistLocked(ctx)
}

// Remove stops tracking the wallet id. Ledger records fetched for it are kept.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, w := range r.wallets {
		if w.ID == id {
			r.wallets = append(r.wallets[:i:i], r.wallets[i+1:]...)
			r.log.WithField("wallet", id).Info("wallet removed")
			return r.persistLocked(ctx)
		}
	}
	return fmt.Errorf("%s: %w", id, domain.ErrWalletNotFound)
}

// RecordSync stores a successful balance reading for the wallet id.
func (r *Registry) RecordSync(ctx context.Context, id string, snap domain.BalanceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.wallets {
		if r.wallets[i].ID != id {
			continue
		}
		r.wallets[i].Balance = decimal.NewNullDecimal(snap.Balance)
		r.wallets[i].LastSync = snap.AsOf
		if r.wallets[i].LastSync.IsZero() {
			r.wallets[i].LastSync = r.now().UTC()
		}
		return r.persistLocked(ctx)
	}
	return fmt.Errorf("%s: %w", id, domain.ErrWalletNotFound)
}

// List returns a copy of the tracked wallets in insertion order.
func (r *Registry) List() []domain.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Wallet, len(r.wallets))
	copy(out, r.wallets)
	return out
}

// Get returns the wallet id.
func (r *Registry) Get(id string) (domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.ID == id {
			return w, nil
		}
	}
	return domain.Wallet{}, fmt.Errorf("%s: %w", id, domain.ErrWalletNotFound)
}

func (r *Registry) persistLocked(ctx context.Context) error {
	if err := r.repo.SaveWallets(ctx, r.wallets); err != nil {
		r.log.WithError(err).Error("save wallets")
		return fmt.Errorf("save wallets: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
