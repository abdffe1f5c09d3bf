// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	planJSON, err := json.Marshal(snapshot.Plan)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plan: %w", err)
	}

	var settlementJSON []byte
	if snapshot.Settlement != nil {
		if settlementJSON, err = json.Marshal(snapshot.Settlement); err != nil {
			return 0, fmt.Errorf("failed to marshal settlement: %w", err)
		}
	}

	skipped := make([]string, 0, len(snapshot.Plan.Skipped))
	for _, s := range snapshot.Plan.Skipped {
		skipped = append(skipped, string(s.VenueID))
	}

	totalCapital := "0"
	if !snapshot.TotalCapital.IsNil() {
		totalCapital = snapshot.TotalCapital.String()
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, total_capital,
			plan, skipped_venues, fallback_venues, circuit_breaker,
			management_fee_bps, performance_fee_bps, settlement, error, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx,
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, totalCapital,
		planJSON, pq.Array(skipped), pq.Array(snapshot.FallbackVenues), snapshot.CircuitBreaker,
		snapshot.Fees.ManagementFeeBps, snapshot.Fees.PerformanceFeeBps, settlementJSON, snapshot.Error, snapshot.DurationMs,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("cycle_id", snapshot.CycleID).
		Int("allocations", len(snapshot.Plan.Allocations)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}
