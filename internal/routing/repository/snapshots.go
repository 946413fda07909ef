package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"leadrouting_backend/internal/scoring"
	"leadrouting_backend/platform/apperr"
)

const opListSnapshots = "repository.ListSnapshots"

// ListSnapshots reads the latest performance snapshot per agent. The rows
// are written by the metrics job; this pipeline only reads them.
func (r *Repository) ListSnapshots(ctx context.Context) ([]scoring.Snapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (agent_id)
			agent_id, conversion_rate, avg_deal_size, industry_win_rates,
			hot_streak, recent_win_count, median_response_minutes,
			burnout_score, available, availability
		FROM agent_snapshots
		ORDER BY agent_id, window_start DESC
	`)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("load snapshots: %v", err)).WithOp(opListSnapshots)
	}
	defer rows.Close()

	snapshots := make([]scoring.Snapshot, 0)
	for rows.Next() {
		var (
			s        scoring.Snapshot
			winRates []byte
		)
		err := rows.Scan(
			&s.AgentID, &s.ConversionRate, &s.AvgDealSize, &winRates,
			&s.HotStreak, &s.RecentWinCount, &s.MedianResponseMinutes,
			&s.BurnoutScore, &s.Available, &s.Availability,
		)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan snapshot: %v", err)).WithOp(opListSnapshots)
		}
		if len(winRates) > 0 {
			if err := json.Unmarshal(winRates, &s.IndustryWinRates); err != nil {
				return nil, apperr.Internal(fmt.Sprintf("decode win rates: %v", err)).WithOp(opListSnapshots)
			}
		}
		snapshots = append(snapshots, s)
	}
	if rows.Err() != nil {
		return nil, apperr.Internal(fmt.Sprintf("load snapshots: %v", rows.Err())).WithOp(opListSnapshots)
	}
	return snapshots, nil
}
