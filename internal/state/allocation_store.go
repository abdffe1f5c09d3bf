package state

import (
	"context"
	"database/sql"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// ReplaceAllocations swaps the stored allocation set for the one produced by cycleID.
func ReplaceAllocations(ctx context.Context, cycleID string, allocations []types.Allocation) error {
	err := withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM allocations;`); err != nil {
			return fmt.Errorf("failed to clear allocations: %w", err)
		}
		const stmt = `
			INSERT INTO allocations (
				venue_id, cycle_id, amount, yield_bps, allocated_at, leveraged, borrow_amount, ltv_bps
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
		for _, a := range allocations {
			borrow := a.BorrowAmount
			if borrow.IsNil() {
				borrow = sdkmath.ZeroInt()
			}
			if _, err := tx.ExecContext(ctx, stmt,
				string(a.VenueID), cycleID, a.Amount.String(), a.YieldBps, a.Timestamp,
				a.Leveraged, borrow.String(), a.LTVBps,
			); err != nil {
				return fmt.Errorf("failed to insert allocation for %s: %w", a.VenueID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("cycle_id", cycleID).Int("count", len(allocations)).Msg("Persisted allocations")
	return nil
}

// LoadAllocations returns the stored allocation set.
func LoadAllocations(ctx context.Context) ([]types.Allocation, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	const query = `
		SELECT venue_id, amount::TEXT, yield_bps, allocated_at, leveraged, borrow_amount::TEXT, ltv_bps
		FROM allocations
		ORDER BY allocated_at ASC, venue_id ASC;`

	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []types.Allocation
	for rows.Next() {
		var (
			a              types.Allocation
			venueID        string
			amount, borrow string
		)
		if err := rows.Scan(&venueID, &amount, &a.YieldBps, &a.Timestamp, &a.Leveraged, &borrow, &a.LTVBps); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.VenueID = types.VenueID(venueID)
		var ok bool
		if a.Amount, ok = sdkmath.NewIntFromString(amount); !ok {
			return nil, fmt.Errorf("invalid stored amount %q for %s", amount, venueID)
		}
		if a.BorrowAmount, ok = sdkmath.NewIntFromString(borrow); !ok {
			return nil, fmt.Errorf("invalid stored borrow amount %q for %s", borrow, venueID)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during allocation iteration: %w", err)
	}
	return out, nil
}
