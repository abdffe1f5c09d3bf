package state

import (
	"context"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// PostgresStore adapts the package-level functions to the interfaces the engine and the fee
// timelock persist through. It uses the global DB pool.
type PostgresStore struct{}

func NewPostgresStore() *PostgresStore {
	return &PostgresStore{}
}

func (PostgresStore) SaveProposal(ctx context.Context, p types.FeeProposal) error {
	return SaveFeeProposal(ctx, p)
}

func (PostgresStore) ExecuteProposal(ctx context.Context, p types.FeeProposal) error {
	return ExecuteFeeProposal(ctx, p)
}

func (PostgresStore) LoadProposals(ctx context.Context) ([]types.FeeProposal, error) {
	return LoadFeeProposals(ctx)
}

func (PostgresStore) SaveAllocations(ctx context.Context, cycleID string, allocations []types.Allocation) error {
	return ReplaceAllocations(ctx, cycleID, allocations)
}

func (PostgresStore) LoadAllocations(ctx context.Context) ([]types.Allocation, error) {
	return LoadAllocations(ctx)
}

func (PostgresStore) SaveSnapshot(ctx context.Context, s types.CycleSnapshot) error {
	_, err := SaveCycleSnapshot(ctx, s)
	return err
}

func (PostgresStore) NextCycleNumber(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (PostgresStore) SaveParameters(ctx context.Context, p types.EngineParameters, version int, updatedBy string) error {
	_, err := SaveEngineParameters(ctx, p, version, true, updatedBy)
	return err
}

func (PostgresStore) LoadParameters(ctx context.Context) (*types.EngineParameters, int, error) {
	return LoadActiveEngineParameters(ctx)
}
