package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"
)

// Manager defines the interface for the settlement side of the engine.
// It abstracts where capital actually sits, so the engine can plan against a paper book
// today and a custody-backed implementation later.
type Manager interface {
	// TotalCapital returns idle capital plus the principal placed in venues, less fees owed.
	TotalCapital(ctx context.Context) (sdkmath.Int, error)

	// AccrueFees books the management fee earned since the last accrual at the given rates. The
	// accrued amount is owed until ApplyPlan pays it and is excluded from TotalCapital meanwhile.
	AccrueFees(ctx context.Context, fees types.FeeRates) (sdkmath.Int, error)

	// Positions returns the principal held per venue.
	Positions() map[types.VenueID]sdkmath.Int

	// ApplyPlan pays owed fees and moves capital so venue positions match the plan.
	// Per-venue failures are reported in the result; the call only errors when nothing could be settled.
	ApplyPlan(ctx context.Context, plan types.AllocationPlan, fees types.FeeRates) (*types.SettlementResult, error)

	// Close cleans up any resources used by the vault manager.
	Close() error
}

// Venues resolves venue handles for settlement.
type Venues interface {
	Get(id types.VenueID) (venue.Entry, bool)
}
