package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// EngineSummary represents high-level engine statistics
type EngineSummary struct {
	TotalCycles      int    `json:"total_cycles"`
	FailedCycles     int    `json:"failed_cycles"`
	DegradedCycles   int    `json:"degraded_cycles"` // Cycles where at least one venue used the fallback yield
	BreakerCycles    int    `json:"breaker_cycles"`
	AvgDurationMs    int64  `json:"avg_duration_ms"`
	LastTotalCapital string `json:"last_total_capital"`
	LastUpdated      string `json:"last_updated"`
}

const snapshotColumns = `
	snapshot_id, cycle_number, cycle_id, snapshot_timestamp, total_capital::TEXT,
	plan, fallback_venues, circuit_breaker,
	management_fee_bps, performance_fee_bps, settlement, COALESCE(error, ''), duration_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (types.CycleSnapshot, error) {
	var (
		cycle                    types.CycleSnapshot
		totalCapital             string
		planJSON, settlementJSON []byte
	)
	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &totalCapital,
		&planJSON, pq.Array(&cycle.FallbackVenues), &cycle.CircuitBreaker,
		&cycle.Fees.ManagementFeeBps, &cycle.Fees.PerformanceFeeBps, &settlementJSON, &cycle.Error, &cycle.DurationMs,
	)
	if err != nil {
		return cycle, err
	}

	var ok bool
	if cycle.TotalCapital, ok = sdkmath.NewIntFromString(totalCapital); !ok {
		return cycle, fmt.Errorf("invalid stored total capital %q", totalCapital)
	}
	if len(planJSON) > 0 {
		if err := json.Unmarshal(planJSON, &cycle.Plan); err != nil {
			return cycle, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
	}
	if len(settlementJSON) > 0 {
		cycle.Settlement = &types.SettlementResult{}
		if err := json.Unmarshal(settlementJSON, cycle.Settlement); err != nil {
			return cycle, fmt.Errorf("failed to unmarshal settlement: %w", err)
		}
	}
	return cycle, nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first
func GetRecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `SELECT ` + snapshotColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	cycles := []types.CycleSnapshot{}
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByNumber retrieves a specific cycle by its cycle number
func GetCycleByNumber(ctx context.Context, cycleNumber int) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	query := `SELECT ` + snapshotColumns + `
		FROM cycle_snapshots
		WHERE cycle_number = $1
		ORDER BY snapshot_id DESC
		LIMIT 1`

	cycle, err := scanSnapshot(DB.QueryRowContext(ctx, query, cycleNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.Wrapf(types.ErrNotFound, "cycle %d", cycleNumber)
	}
	if err != nil {
		log.Error().Err(err).Int("cycle_number", cycleNumber).Msg("Failed to query cycle")
		return nil, fmt.Errorf("failed to query cycle %d: %w", cycleNumber, err)
	}
	return &cycle, nil
}

// GetEngineSummary retrieves aggregated cycle statistics
func GetEngineSummary(ctx context.Context) (*EngineSummary, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	summary := &EngineSummary{LastTotalCapital: "0"}

	const aggregateQuery = `
		SELECT
			COUNT(*) AS total_cycles,
			COUNT(CASE WHEN error IS NOT NULL AND error <> '' THEN 1 END) AS failed_cycles,
			COUNT(CASE WHEN cardinality(fallback_venues) > 0 THEN 1 END) AS degraded_cycles,
			COUNT(CASE WHEN circuit_breaker THEN 1 END) AS breaker_cycles,
			COALESCE(AVG(duration_ms), 0)::BIGINT AS avg_duration_ms
		FROM cycle_snapshots`

	err := DB.QueryRowContext(ctx, aggregateQuery).Scan(
		&summary.TotalCycles,
		&summary.FailedCycles,
		&summary.DegradedCycles,
		&summary.BreakerCycles,
		&summary.AvgDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle aggregates: %w", err)
	}

	const latestQuery = `
		SELECT total_capital::TEXT, snapshot_timestamp::TEXT
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1`

	var lastUpdated sql.NullString
	err = DB.QueryRowContext(ctx, latestQuery).Scan(&summary.LastTotalCapital, &lastUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get latest cycle: %w", err)
	}
	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.String
	}

	log.Debug().Int("totalCycles", summary.TotalCycles).Int("failedCycles", summary.FailedCycles).Msg("Retrieved engine summary")
	return summary, nil
}
