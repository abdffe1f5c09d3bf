package oracle

import (
	"context"
	"fmt"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/rpc"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	"google.golang.org/grpc"
)

// GRPCSource is a remote oracle reached over gRPC.
type GRPCSource struct {
	id   string
	conn *grpc.ClientConn
}

func NewGRPCSource(id string, conn *grpc.ClientConn) *GRPCSource {
	return &GRPCSource{id: id, conn: conn}
}

func (s *GRPCSource) ID() string { return s.id }

func (s *GRPCSource) Predict(ctx context.Context, venue types.VenueID) (types.Prediction, error) {
	if s.conn == nil {
		return types.Prediction{}, fmt.Errorf("oracle %s: no connection", s.id)
	}
	var resp rpc.PredictResponse
	if err := s.conn.Invoke(ctx, rpc.OraclePredictMethod, &rpc.PredictRequest{VenueID: string(venue)}, &resp, rpc.CallOptions()...); err != nil {
		return types.Prediction{}, fmt.Errorf("oracle %s predict %s: %w", s.id, venue, err)
	}
	return types.Prediction{
		YieldBps:  resp.YieldBps,
		RiskScore: resp.RiskScore,
		Timestamp: resp.Timestamp,
	}, nil
}
