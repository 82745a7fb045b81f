// Package ledger holds the in-memory transaction ledger: one record per
// on-chain hash, kept in canonical order and written through to storage on
// every mutation.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tronledger/tronledger/internal/domain"
)

// MergeResult describes the outcome of one Merge call.
type MergeResult struct {
	Inserted  int
	Conflicts []string // hashes skipped because the stored payload differs
}

// Store is the single writer over the ledger. All methods are safe for
// concurrent use; Merge is mutually exclusive with itself and every other
// mutation.
type Store struct {
	mu      sync.RWMutex
	repo    domain.LedgerRepository
	log     logrus.FieldLogger
	records []domain.TransactionRecord
	index   map[string]int // hash -> position in records
	dirty   bool           // last save failed; storage is behind memory
}

// NewStore creates an empty store backed by repo.
func NewStore(repo domain.LedgerRepository, log logrus.FieldLogger) *Store {
	return &Store{
		repo:  repo,
		log:   log.WithField("component", "ledger"),
		index: make(map[string]int),
	}
}

// Load replaces the in-memory ledger with the persisted one. Notes are
// joined onto their records.
func (s *Store) Load(ctx context.Context) error {
	recs, err := s.repo.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w: %w", domain.ErrPersistence, err)
	}
	notes, err := s.repo.LoadNotes(ctx)
	if err != nil {
		return fmt.Errorf("load notes: %w: %w", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
	for _, r := range recs {
		if n, ok := notes[r.Hash]; ok {
			r.Note = n
		}
		s.records = append(s.records, r)
	}
	s.sortLocked()
	return nil
}

// Merge inserts every record whose hash is not yet known and returns how
// many were inserted. Known hashes are left untouched, so status and note
// survive a re-fetch. A known hash arriving with a different payload is a
// hash conflict: it is skipped and the rest of the batch proceeds.
//
// A persistence failure is returned wrapped in ErrPersistence together with
// the result; the in-memory insertions stand and the next Merge retries the
// save even when it inserts nothing.
func (s *Store) Merge(ctx context.Context, incoming []domain.TransactionRecord) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult
	for _, r := range incoming {
		if i, ok := s.index[r.Hash]; ok {
			if !s.records[i].SamePayload(r) {
				res.Conflicts = append(res.Conflicts, r.Hash)
				s.log.WithFields(logrus.Fields{
					"hash":   r.Hash,
					"wallet": r.Wallet,
				}).Warn(domain.ErrHashConflict.Error())
			}
			continue
		}
		r.Note = "" // fetched records never carry a note
		s.index[r.Hash] = len(s.records)
		s.records = append(s.records, r)
		res.Inserted++
	}

	if res.Inserted > 0 {
		s.sortLocked()
	} else if !s.dirty {
		return res, nil
	}
	return res, s.persistLocked(ctx)
}

// SetStatus updates the status annotation of hash.
func (s *Store) SetStatus(ctx context.Context, hash string, status domain.TxStatus) error {
	if _, err := domain.ParseTxStatus(string(status)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[hash]
	if !ok {
		return fmt.Errorf("%s: %w", hash, domain.ErrTransactionNotFound)
	}
	s.records[i].Status = status
	return s.persistLocked(ctx)
}

// SetNote stores a free-text note for hash. An empty text clears it.
func (s *Store) SetNote(ctx context.Context, hash, text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[hash]
	if !ok {
		return fmt.Errorf("%s: %w", hash, domain.ErrTransactionNotFound)
	}
	s.records[i].Note = text
	if err := s.repo.SaveNote(ctx, hash, text); err != nil {
		s.log.WithError(err).WithField("hash", hash).Error("save note")
		return fmt.Errorf("save note %s: %w: %w", hash, domain.ErrPersistence, err)
	}
	return nil
}

// All returns a copy of the ledger in canonical order.
func (s *Store) All() []domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TransactionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the record for hash.
func (s *Store) Get(hash string) (domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[hash]
	if !ok {
		return domain.TransactionRecord{}, fmt.Errorf("%s: %w", hash, domain.ErrTransactionNotFound)
	}
	return s.records[i], nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Sent returns sent records in canonical order. A non-empty wallet
// restricts the result to records fetched for that address.
func (s *Store) Sent(wallet string) []domain.TransactionRecord {
	return s.filter(domain.DirectionSent, wallet)
}

// Received is the inbound counterpart of Sent.
func (s *Store) Received(wallet string) []domain.TransactionRecord {
	return s.filter(domain.DirectionReceived, wallet)
}

func (s *Store) filter(dir domain.Direction, wallet string) []domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TransactionRecord
	for _, r := range s.records {
		if r.Direction != dir {
			continue
		}
		if wallet != "" && !strings.EqualFold(r.Wallet, wallet) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ─── internal ───────────────────────────────────────────────────────────────

// sortLocked restores canonical order: newest first, ties by hash.
func (s *Store) sortLocked() {
	sort.SliceStable(s.records, func(i, j int) bool {
		a, b := s.records[i], s.records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Hash < b.Hash
	})
	s.reindex()
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.Hash] = i
	}
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.repo.SaveLedger(ctx, s.records); err != nil {
		s.dirty = true
		s.log.WithError(err).Error("save ledger")
		return fmt.Errorf("save ledger: %w: %w", domain.ErrPersistence, err)
	}
	if s.dirty {
		s.log.WithField("records", len(s.records)).Info("ledger save recovered")
	}
	s.dirty = false
	return nil
}
