package venue

import (
	"context"
	"fmt"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/rpc"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/utils"

	sdkmath "cosmossdk.io/math"
	"google.golang.org/grpc"
)

// GRPCHandle is a venue adapter reached over gRPC.
type GRPCHandle struct {
	id   types.VenueID
	conn *grpc.ClientConn
}

func NewGRPCHandle(id types.VenueID, conn *grpc.ClientConn) *GRPCHandle {
	return &GRPCHandle{id: id, conn: conn}
}

func (h *GRPCHandle) Query(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, int64, error) {
	var resp rpc.QueryResponse
	req := &rpc.QueryRequest{VenueID: string(h.id), Amount: amount.String()}
	if err := h.conn.Invoke(ctx, rpc.VenueQueryMethod, req, &resp, rpc.CallOptions()...); err != nil {
		return sdkmath.ZeroInt(), 0, fmt.Errorf("venue %s query: %w", h.id, err)
	}
	liquidity, err := utils.ParseAmount(resp.Liquidity)
	if err != nil {
		return sdkmath.ZeroInt(), 0, fmt.Errorf("venue %s reported liquidity: %w", h.id, err)
	}
	return liquidity, resp.YieldBps, nil
}

func (h *GRPCHandle) Deposit(ctx context.Context, amount sdkmath.Int) error {
	var resp rpc.TransferResponse
	req := &rpc.TransferRequest{VenueID: string(h.id), Amount: amount.String()}
	if err := h.conn.Invoke(ctx, rpc.VenueDepositMethod, req, &resp, rpc.CallOptions()...); err != nil {
		return fmt.Errorf("venue %s deposit: %w", h.id, err)
	}
	return nil
}

func (h *GRPCHandle) Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	var resp rpc.TransferResponse
	req := &rpc.TransferRequest{VenueID: string(h.id), Amount: amount.String()}
	if err := h.conn.Invoke(ctx, rpc.VenueWithdrawMethod, req, &resp, rpc.CallOptions()...); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("venue %s withdraw: %w", h.id, err)
	}
	actual, err := utils.ParseAmount(resp.Amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("venue %s withdrawn amount: %w", h.id, err)
	}
	return actual, nil
}
