package duplicate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tronledger/tronledger/internal/domain"
)

// Review keeps the user's Legitimate decisions, keyed by cluster ID, so they
// hold across detection runs. A decision is permanent.
type Review struct {
	mu        sync.RWMutex
	repo      domain.DecisionRepository
	log       logrus.FieldLogger
	decisions map[string]time.Time
	current   []domain.DuplicateCluster // last detection result, emission order
	pos       map[string]int
	now       func() time.Time
}

// NewReview creates a review backed by repo.
func NewReview(repo domain.DecisionRepository, log logrus.FieldLogger) *Review {
	return &Review{
		repo:      repo,
		log:       log.WithField("component", "duplicate"),
		decisions: make(map[string]time.Time),
		pos:       make(map[string]int),
		now:       time.Now,
	}
}

// Load reads persisted decisions.
func (r *Review) Load(ctx context.Context) error {
	d, err := r.repo.LoadDecisions(ctx)
	if err != nil {
		return fmt.Errorf("load decisions: %w: %w", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, at := range d {
		r.decisions[id] = at
	}
	return nil
}

// Apply marks clusters with a stored decision Legitimate and remembers the
// result as the current detection. The input slice is not modified.
func (r *Review) Apply(clusters []domain.DuplicateCluster) []domain.DuplicateCluster {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DuplicateCluster, len(clusters))
	r.pos = make(map[string]int, len(clusters))
	for i, c := range clusters {
		if _, ok := r.decisions[c.ID]; ok {
			c.Status = domain.ClusterLegitimate
		}
		out[i] = c
		r.pos[c.ID] = i
	}
	r.current = append([]domain.DuplicateCluster(nil), out...)
	return out
}

// MarkLegitimate records that the cluster id is not a mistake. The cluster
// must be part of the current detection result. Marking an already
// legitimate cluster is a no-op.
//
// A persistence failure is returned wrapped in ErrPersistence; the decision
// still holds for this process.
func (r *Review) MarkLegitimate(ctx context.Context, id string) (domain.DuplicateCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.pos[id]
	if !ok {
		return domain.DuplicateCluster{}, fmt.Errorf("%s: %w", id, domain.ErrClusterNotFound)
	}
	c := r.current[i]
	if _, done := r.decisions[id]; done {
		return c, nil
	}

	at := r.now()
	r.decisions[id] = at
	c.Status = domain.ClusterLegitimate
	r.current[i] = c

	if err := r.repo.SaveDecision(ctx, id, c.Members, at); err != nil {
		r.log.WithError(err).WithField("cluster", id).Error("save decision")
		return c, fmt.Errorf("save decision %s: %w: %w", id, domain.ErrPersistence, err)
	}
	return c, nil
}

// Current returns the last applied detection result in emission order,
// optionally filtered by status ("" means all).
func (r *Review) Current(status domain.ClusterStatus) []domain.DuplicateCluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DuplicateCluster, 0, len(r.current))
	for _, c := range r.current {
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Counts returns pending and legitimate totals over clusters.
func Counts(clusters []domain.DuplicateCluster) (pending, legitimate int) {
	for _, c := range clusters {
		if c.Status == domain.ClusterLegitimate {
			legitimate++
		} else {
			pending++
		}
	}
	return pending, legitimate
}
