package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	OracleService       = "yield.oracle.v1.Oracle"
	OraclePredictMethod = "/" + OracleService + "/Predict"

	VenueService        = "yield.venue.v1.Venue"
	VenueQueryMethod    = "/" + VenueService + "/Query"
	VenueDepositMethod  = "/" + VenueService + "/Deposit"
	VenueWithdrawMethod = "/" + VenueService + "/Withdraw"
)

type PredictRequest struct {
	VenueID string `json:"venue_id"`
}

type PredictResponse struct {
	YieldBps  int64     `json:"yield_bps"`
	RiskScore int64     `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

// Amounts travel as decimal strings.
type QueryRequest struct {
	VenueID string `json:"venue_id"`
	Amount  string `json:"amount"`
}

type QueryResponse struct {
	Liquidity string `json:"liquidity"`
	YieldBps  int64  `json:"yield_bps"`
}

type TransferRequest struct {
	VenueID string `json:"venue_id"`
	Amount  string `json:"amount"`
}

type TransferResponse struct {
	Amount string `json:"amount"` // Actual amount moved
}

// OracleServer is implemented by oracle processes.
type OracleServer interface {
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
}

// VenueServer is implemented by venue adapters.
type VenueServer interface {
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
	Deposit(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
	Withdraw(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
}

// RegisterOracleServer exposes srv on s.
func RegisterOracleServer(s *grpc.Server, srv OracleServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: OracleService,
		HandlerType: (*OracleServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Predict", Handler: unary(OraclePredictMethod, func(ctx context.Context, srv interface{}, req *PredictRequest) (interface{}, error) {
				return srv.(OracleServer).Predict(ctx, req)
			})},
		},
	}, srv)
}

// RegisterVenueServer exposes srv on s.
func RegisterVenueServer(s *grpc.Server, srv VenueServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: VenueService,
		HandlerType: (*VenueServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Query", Handler: unary(VenueQueryMethod, func(ctx context.Context, srv interface{}, req *QueryRequest) (interface{}, error) {
				return srv.(VenueServer).Query(ctx, req)
			})},
			{MethodName: "Deposit", Handler: unary(VenueDepositMethod, func(ctx context.Context, srv interface{}, req *TransferRequest) (interface{}, error) {
				return srv.(VenueServer).Deposit(ctx, req)
			})},
			{MethodName: "Withdraw", Handler: unary(VenueWithdrawMethod, func(ctx context.Context, srv interface{}, req *TransferRequest) (interface{}, error) {
				return srv.(VenueServer).Withdraw(ctx, req)
			})},
		},
	}, srv)
}

// unary adapts a typed handler to grpc.MethodDesc, honouring server interceptors.
func unary[Req any](fullMethod string, call func(context.Context, interface{}, *Req) (interface{}, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, srv, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, r interface{}) (interface{}, error) {
			return call(ctx, srv, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}
