package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tronledger/tronledger/internal/domain"
)

// ─── Duplicate Decision Operations ──────────────────────────────────────────

// LoadDecisions returns the Legitimate decisions keyed by cluster ID.
func (d *DB) LoadDecisions(ctx context.Context) (map[string]time.Time, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT cluster_id, decided_at FROM duplicate_decisions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var decidedMs int64
		if err := rows.Scan(&id, &decidedMs); err != nil {
			return nil, err
		}
		out[id] = time.UnixMilli(decidedMs).UTC()
	}
	return out, rows.Err()
}

// SaveDecision records a Legitimate decision. Re-saving keeps the first decision time.
func (d *DB) SaveDecision(ctx context.Context, clusterID string, members []string, decidedAt time.Time) error {
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO duplicate_decisions (cluster_id, members, status, decided_at)
		VALUES (?, ?, ?, ?)
	`, clusterID, string(membersJSON), string(domain.ClusterLegitimate), decidedAt.UnixMilli())
	return err
}
