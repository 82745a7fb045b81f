package duplicate

import (
	"sort"

	"github.com/tronledger/tronledger/internal/domain"
)

// Detect groups records by exact amount and emits one Pending cluster for
// every pair within a group that scores at least Threshold. Pairs are not
// merged transitively, so a record may appear in several clusters.
//
// Output order is deterministic: groups in order of first appearance, then
// pairs (i<j) in input order.
func Detect(records []domain.TransactionRecord) []domain.DuplicateCluster {
	var (
		order  []string
		groups = make(map[string][]domain.TransactionRecord)
	)
	for _, r := range records {
		// String() of a decimal is canonical: 100 and 100.000000 share a key.
		key := r.Amount.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var clusters []domain.DuplicateCluster
	for _, key := range order {
		g := groups[key]
		if len(g) < 2 {
			continue
		}
		for i := 0; i < len(g); i++ {
			for j := i + 1; j < len(g); j++ {
				if g[i].Hash == g[j].Hash {
					continue
				}
				s := Score(g[i], g[j])
				if s < Threshold {
					continue
				}
				members := []string{g[i].Hash, g[j].Hash}
				sort.Strings(members)
				clusters = append(clusters, domain.DuplicateCluster{
					ID:         domain.ClusterID(g[i].Hash, g[j].Hash),
					Members:    members,
					Amount:     key,
					Similarity: s,
					Status:     domain.ClusterPending,
				})
			}
		}
	}
	return clusters
}
