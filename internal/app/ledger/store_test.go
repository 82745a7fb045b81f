package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tronledger/tronledger/internal/domain"
	"github.com/tronledger/tronledger/internal/infra/sqlite"
)

const (
	walletA = "THPyFKcHb7NcHdYjbA8PWwrSd1U4w6fEN9"
	walletB = "TBqAP9nzYBs4VqTnJFQ5WWZtYq2Qb1SSRa"
)

// memRepo is an in-memory LedgerRepository with an injectable save failure.
type memRepo struct {
	saved   []domain.TransactionRecord
	notes   map[string]string
	saveErr error
	saves   int
}

func newMemRepo() *memRepo { return &memRepo{notes: map[string]string{}} }

func (m *memRepo) LoadLedger(context.Context) ([]domain.TransactionRecord, error) {
	return append([]domain.TransactionRecord(nil), m.saved...), nil
}

func (m *memRepo) SaveLedger(_ context.Context, recs []domain.TransactionRecord) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append([]domain.TransactionRecord(nil), recs...)
	return nil
}

func (m *memRepo) LoadNotes(context.Context) (map[string]string, error) { return m.notes, nil }

func (m *memRepo) LoadNote(_ context.Context, hash string) (string, error) {
	return m.notes[hash], nil
}

func (m *memRepo) SaveNote(_ context.Context, hash, text string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if text == "" {
		delete(m.notes, hash)
		return nil
	}
	m.notes[hash] = text
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func rec(hash, amount string, sec int64) domain.TransactionRecord {
	return domain.TransactionRecord{
		Hash:      hash,
		Amount:    decimal.RequireFromString(amount),
		Direction: domain.DirectionSent,
		From:      walletA,
		To:        walletB,
		Timestamp: time.Unix(sec, 0).UTC(),
		Wallet:    walletA,
		Status:    domain.TxCompleted,
	}
}

func hashes(recs []domain.TransactionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Hash
	}
	return out
}

// ─── Merge ──────────────────────────────────────────────────────────────────

func TestMerge_Idempotent(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	ctx := context.Background()
	batch := []domain.TransactionRecord{rec("a", "1", 100), rec("b", "2", 200)}

	res, err := s.Merge(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	res, err = s.Merge(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 2, s.Len())
}

func TestMerge_SingleHashTwice(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	ctx := context.Background()

	res, _ := s.Merge(ctx, []domain.TransactionRecord{rec("a", "5", 1)})
	assert.Equal(t, 1, res.Inserted)
	res, _ = s.Merge(ctx, []domain.TransactionRecord{rec("a", "5", 1)})
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, s.Len())
}

func TestMerge_DuplicateWithinBatch(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	res, err := s.Merge(context.Background(), []domain.TransactionRecord{rec("a", "5", 1), rec("a", "5", 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, s.Len())
}

func TestMerge_CanonicalOrder(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	ctx := context.Background()

	s.Merge(ctx, []domain.TransactionRecord{rec("old", "1", 100), rec("z", "1", 300)})
	s.Merge(ctx, []domain.TransactionRecord{rec("mid", "1", 200), rec("y", "1", 300)})

	assert.Equal(t, []string{"y", "z", "mid", "old"}, hashes(s.All()))
}

func TestMerge_NoteSurvivesRefetch(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, quietLogger())
	ctx := context.Background()

	s.Merge(ctx, []domain.TransactionRecord{rec("a", "10", 100)})
	require.NoError(t, s.SetNote(ctx, "a", "rent"))
	require.NoError(t, s.SetStatus(ctx, "a", domain.TxPending))

	fresh := rec("a", "10", 100)
	fresh.Note = "from source"
	res, err := s.Merge(ctx, []domain.TransactionRecord{fresh})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Note)
	assert.Equal(t, domain.TxPending, got.Status)
	assert.Equal(t, "rent", repo.notes["a"])
}

func TestMerge_HashConflictSkipped(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	ctx := context.Background()

	s.Merge(ctx, []domain.TransactionRecord{rec("a", "10", 100)})

	res, err := s.Merge(ctx, []domain.TransactionRecord{rec("a", "99", 100), rec("b", "1", 50)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"a"}, res.Conflicts)

	got, _ := s.Get("a")
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("10")), "stored payload must win")
}

func TestMerge_OppositeDirectionIsNotConflict(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	ctx := context.Background()

	sent := rec("a", "10", 100)
	s.Merge(ctx, []domain.TransactionRecord{sent})

	received := sent
	received.Direction = domain.DirectionReceived
	received.Wallet = walletB
	res, err := s.Merge(ctx, []domain.TransactionRecord{received})
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)

	got, _ := s.Get("a")
	assert.Equal(t, domain.DirectionSent, got.Direction, "first-seen record wins")
}

func TestMerge_PersistenceFailureKeepsMemory(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk full")
	s := NewStore(repo, quietLogger())

	res, err := s.Merge(context.Background(), []domain.TransactionRecord{rec("a", "1", 1)})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, s.Len())
}

func TestMerge_NothingNewSkipsSave(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, quietLogger())
	ctx := context.Background()

	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})
	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})
	assert.Equal(t, 1, repo.saves)
}

func TestMerge_RetriesSaveAfterFailure(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk full")
	s := NewStore(repo, quietLogger())
	ctx := context.Background()

	_, err := s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, repo.saved)

	// Storage recovers; a re-fetch inserts nothing but still writes the ledger.
	repo.saveErr = nil
	res, err := s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, []string{"a"}, hashes(repo.saved))

	// Clean again: nothing new means no write.
	saves := repo.saves
	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})
	assert.Equal(t, saves, repo.saves)
}

func TestMerge_EmptyBatchFlushesPendingSave(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk full")
	s := NewStore(repo, quietLogger())
	ctx := context.Background()

	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1), rec("b", "2", 2)})
	repo.saveErr = nil

	_, err := s.Merge(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, hashes(repo.saved))
}

// ─── Annotations ────────────────────────────────────────────────────────────

func TestSetStatus(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, quietLogger())
	ctx := context.Background()
	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})

	require.NoError(t, s.SetStatus(ctx, "a", domain.TxPending))
	assert.Equal(t, domain.TxPending, repo.saved[0].Status)

	assert.ErrorIs(t, s.SetStatus(ctx, "missing", domain.TxPending), domain.ErrTransactionNotFound)
	assert.ErrorIs(t, s.SetStatus(ctx, "a", domain.TxStatus("done")), domain.ErrInvalidStatus)
}

func TestSetNote(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, quietLogger())
	ctx := context.Background()
	s.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 1)})

	assert.ErrorIs(t, s.SetNote(ctx, "missing", "x"), domain.ErrTransactionNotFound)

	require.NoError(t, s.SetNote(ctx, "a", "  payroll  "))
	got, _ := s.Get("a")
	assert.Equal(t, "payroll", got.Note)

	require.NoError(t, s.SetNote(ctx, "a", ""))
	_, ok := repo.notes["a"]
	assert.False(t, ok)

	repo.saveErr = errors.New("locked")
	err := s.SetNote(ctx, "a", "kept")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	got, _ = s.Get("a")
	assert.Equal(t, "kept", got.Note, "in-memory note stands after a failed write")
}

// ─── Views ──────────────────────────────────────────────────────────────────

func TestSentReceived_Filter(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	in := rec("in", "3", 300)
	in.Direction = domain.DirectionReceived
	other := rec("other", "2", 200)
	other.Wallet = walletB
	s.Merge(context.Background(), []domain.TransactionRecord{rec("out", "1", 100), in, other})

	assert.Equal(t, []string{"other", "out"}, hashes(s.Sent("")))
	assert.Equal(t, []string{"out"}, hashes(s.Sent(walletA)))
	assert.Equal(t, []string{"in"}, hashes(s.Received("")))
	assert.Empty(t, s.Received(walletB))
}

func TestAll_ReturnsCopy(t *testing.T) {
	s := NewStore(newMemRepo(), quietLogger())
	s.Merge(context.Background(), []domain.TransactionRecord{rec("a", "1", 1)})

	all := s.All()
	all[0].Note = "mutated"
	got, _ := s.Get("a")
	assert.Empty(t, got.Note)
}

// ─── Load ───────────────────────────────────────────────────────────────────

func TestLoad_FromSQLite(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	first := NewStore(db, quietLogger())
	first.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 100), rec("b", "2", 200)})
	require.NoError(t, first.SetNote(ctx, "a", "lunch"))

	second := NewStore(db, quietLogger())
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, []string{"b", "a"}, hashes(second.All()))

	got, err := second.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "lunch", got.Note)

	res, err := second.Merge(ctx, []domain.TransactionRecord{rec("a", "1", 100)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
}
