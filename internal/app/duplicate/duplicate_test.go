package duplicate

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
)

const (
	addrA = "THPyFKcHb7NcHdYjbA8PWwrSd1U4w6fEN9"
	addrB = "TBqAP9nzYBs4VqTnJFQ5WWZtYq2Qb1SSRa"
	addrC = "TJCnKsPa7y5okkXvQAidZBzqx3QyQ6sxMW"
	addrD = "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
)

var t0 = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func tx(hash, amount, from, to string, at time.Time) domain.TransactionRecord {
	return domain.TransactionRecord{
		Hash:      hash,
		Amount:    decimal.RequireFromString(amount),
		Direction: domain.DirectionSent,
		From:      from,
		To:        to,
		Timestamp: at,
		Status:    domain.TxCompleted,
	}
}

// ─── Score ──────────────────────────────────────────────────────────────────

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.TransactionRecord
		want int
	}{
		{
			name: "same parties 24s apart caps at 99",
			a:    tx("a", "2347.34", addrA, addrB, t0),
			b:    tx("b", "2347.34", addrA, addrB, t0.Add(24*time.Second)),
			want: 99,
		},
		{
			name: "different from same to 2h apart",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100", addrC, addrB, t0.Add(2*time.Hour)),
			want: 70,
		},
		{
			name: "different parties 2h apart",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100", addrC, addrD, t0.Add(2*time.Hour)),
			want: 50,
		},
		{
			name: "same from only within the hour",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100", addrA, addrD, t0.Add(59*time.Minute)),
			want: 80,
		},
		{
			name: "exactly one hour apart gets no time bonus",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100", addrA, addrB, t0.Add(time.Hour)),
			want: 90,
		},
		{
			name: "different amounts",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100.01", addrA, addrB, t0),
			want: 0,
		},
		{
			name: "equal amounts with different scale",
			a:    tx("a", "100", addrA, addrB, t0),
			b:    tx("b", "100.000000", addrC, addrD, t0.Add(3*time.Hour)),
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.a, tt.b))
		})
	}
}

func TestScore_SymmetricAndBounded(t *testing.T) {
	addrs := []string{addrA, addrB, addrC}
	offsets := []time.Duration{0, 30 * time.Minute, time.Hour, 5 * time.Hour, -10 * time.Minute}
	amounts := []string{"0", "1", "100"}

	var recs []domain.TransactionRecord
	i := 0
	for _, amt := range amounts {
		for _, from := range addrs {
			for _, to := range addrs {
				for _, off := range offsets {
					recs = append(recs, tx(string(rune('a'+i%26))+amt, amt, from, to, t0.Add(off)))
					i++
				}
			}
		}
	}

	for _, a := range recs {
		for _, b := range recs {
			ab, ba := Score(a, b), Score(b, a)
			require.Equal(t, ab, ba, "Score must be symmetric")
			require.GreaterOrEqual(t, ab, 0)
			require.LessOrEqual(t, ab, MaxScore)
		}
	}
}

// ─── Detect ─────────────────────────────────────────────────────────────────

func TestDetect_Threshold(t *testing.T) {
	// 70 is clustered.
	at70 := Detect([]domain.TransactionRecord{
		tx("a", "100", addrA, addrB, t0),
		tx("b", "100", addrC, addrB, t0.Add(2*time.Hour)),
	})
	require.Len(t, at70, 1)
	assert.Equal(t, 70, at70[0].Similarity)

	// 50 + 10 = 60 and 50 alone are not.
	below := Detect([]domain.TransactionRecord{
		tx("a", "100", addrA, addrB, t0),
		tx("b", "100", addrC, addrD, t0.Add(2*time.Hour)),
		tx("c", "100", addrD, addrC, t0.Add(2*time.Hour+time.Minute)),
	})
	assert.Empty(t, below)
}

func TestDetect_ThresholdConstant(t *testing.T) {
	assert.True(t, 70 >= Threshold, "a score of exactly 70 must cluster")
	assert.False(t, 69 >= Threshold, "a score of 69 must not cluster")
}

func TestDetect_DoublePayment(t *testing.T) {
	clusters := Detect([]domain.TransactionRecord{
		tx("hash2", "2347.34", addrA, addrB, t0.Add(24*time.Second)),
		tx("hash1", "2347.34", addrA, addrB, t0),
	})
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, "dup_hash1_hash2", c.ID)
	assert.Equal(t, []string{"hash1", "hash2"}, c.Members)
	assert.Equal(t, 99, c.Similarity)
	assert.Equal(t, "2347.34", c.Amount)
	assert.Equal(t, domain.ClusterPending, c.Status)
}

func TestDetect_Edges(t *testing.T) {
	assert.Empty(t, Detect(nil))
	assert.Empty(t, Detect([]domain.TransactionRecord{tx("a", "5", addrA, addrB, t0)}))

	// Zero amounts participate normally.
	zero := Detect([]domain.TransactionRecord{
		tx("a", "0", addrA, addrB, t0),
		tx("b", "0", addrA, addrB, t0),
	})
	assert.Len(t, zero, 1)

	// Scale does not split groups.
	scaled := Detect([]domain.TransactionRecord{
		tx("a", "100", addrA, addrB, t0),
		tx("b", "100.000000", addrA, addrB, t0),
	})
	require.Len(t, scaled, 1)
	assert.Equal(t, "100", scaled[0].Amount)
}

func TestDetect_NonTransitiveOverlap(t *testing.T) {
	clusters := Detect([]domain.TransactionRecord{
		tx("a", "10", addrA, addrB, t0),
		tx("b", "10", addrA, addrB, t0.Add(time.Minute)),
		tx("c", "10", addrA, addrB, t0.Add(2*time.Minute)),
	})
	ids := make([]string, len(clusters))
	for i, c := range clusters {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"dup_a_b", "dup_a_c", "dup_b_c"}, ids)
}

func TestDetect_Deterministic(t *testing.T) {
	recs := []domain.TransactionRecord{
		tx("x1", "7", addrA, addrB, t0),
		tx("y1", "3", addrA, addrB, t0),
		tx("x2", "7", addrA, addrB, t0),
		tx("y2", "3", addrA, addrB, t0),
	}
	first := Detect(recs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Detect(recs))
	}
	require.Len(t, first, 2)
	assert.Equal(t, "dup_x1_x2", first[0].ID, "groups follow first appearance")
	assert.Equal(t, "dup_y1_y2", first[1].ID)
}

// ─── Review ─────────────────────────────────────────────────────────────────

type memDecisions struct {
	saved map[string]time.Time
	err   error
}

func (m *memDecisions) LoadDecisions(context.Context) (map[string]time.Time, error) {
	return m.saved, m.err
}

func (m *memDecisions) SaveDecision(_ context.Context, id string, _ []string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.saved[id]; !ok {
		m.saved[id] = at
	}
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pairAB() []domain.TransactionRecord {
	return []domain.TransactionRecord{
		tx("a", "10", addrA, addrB, t0),
		tx("b", "10", addrA, addrB, t0),
	}
}

func TestReview_MarkLegitimateSurvivesRedetection(t *testing.T) {
	repo := &memDecisions{saved: map[string]time.Time{}}
	ctx := context.Background()

	r := NewReview(repo, quietLogger())
	r.Apply(Detect(pairAB()))

	c, err := r.MarkLegitimate(ctx, "dup_a_b")
	require.NoError(t, err)
	assert.Equal(t, domain.ClusterLegitimate, c.Status)
	assert.Contains(t, repo.saved, "dup_a_b")

	// Fresh detection emits Pending; Apply restores the decision.
	again := r.Apply(Detect(pairAB()))
	require.Len(t, again, 1)
	assert.Equal(t, domain.ClusterLegitimate, again[0].Status)

	// A new process loads it from storage.
	r2 := NewReview(repo, quietLogger())
	require.NoError(t, r2.Load(ctx))
	applied := r2.Apply(Detect(pairAB()))
	assert.Equal(t, domain.ClusterLegitimate, applied[0].Status)
	assert.Len(t, r2.Current(domain.ClusterLegitimate), 1)
}

func TestReview_MarkUnknown(t *testing.T) {
	r := NewReview(&memDecisions{saved: map[string]time.Time{}}, quietLogger())
	r.Apply(Detect(pairAB()))

	_, err := r.MarkLegitimate(context.Background(), "dup_x_y")
	assert.ErrorIs(t, err, domain.ErrClusterNotFound)
}

func TestReview_MarkIsIdempotent(t *testing.T) {
	repo := &memDecisions{saved: map[string]time.Time{}}
	r := NewReview(repo, quietLogger())
	r.now = func() time.Time { return t0 }
	r.Apply(Detect(pairAB()))
	ctx := context.Background()

	r.MarkLegitimate(ctx, "dup_a_b")
	r.now = func() time.Time { return t0.Add(time.Hour) }
	_, err := r.MarkLegitimate(ctx, "dup_a_b")
	require.NoError(t, err)
	assert.Equal(t, t0, repo.saved["dup_a_b"])
}

func TestReview_PersistenceFailureKeepsDecision(t *testing.T) {
	repo := &memDecisions{saved: map[string]time.Time{}, err: errors.New("readonly")}
	r := NewReview(repo, quietLogger())
	r.Apply(Detect(pairAB()))

	c, err := r.MarkLegitimate(context.Background(), "dup_a_b")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.ClusterLegitimate, c.Status)

	// The decision holds for later detections in this process.
	again := r.Apply(Detect(pairAB()))
	assert.Equal(t, domain.ClusterLegitimate, again[0].Status)
}

func TestReview_CurrentFilterAndCounts(t *testing.T) {
	r := NewReview(&memDecisions{saved: map[string]time.Time{}}, quietLogger())
	recs := append(pairAB(), tx("c", "10", addrA, addrB, t0))
	r.Apply(Detect(recs))
	r.MarkLegitimate(context.Background(), "dup_a_c")

	all := r.Current("")
	assert.Len(t, all, 3)
	legit := r.Current(domain.ClusterLegitimate)
	require.Len(t, legit, 1)
	assert.Equal(t, "dup_a_c", legit[0].ID)
	assert.Len(t, r.Current(domain.ClusterPending), 2)

	pending, legitimate := Counts(all)
	assert.Equal(t, 2, pending)
	assert.Equal(t, 1, legitimate)
}
