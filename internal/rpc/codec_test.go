package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type stubOracle struct{}

func (stubOracle) Predict(_ context.Context, req *PredictRequest) (*PredictResponse, error) {
	return &PredictResponse{YieldBps: 640, RiskScore: int64(len(req.VenueID)), Timestamp: time.Unix(1_700_000_000, 0).UTC()}, nil
}

func TestOracleRoundTripOverJSONCodec(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterOracleServer(srv, stubOracle{})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var resp PredictResponse
	err = conn.Invoke(context.Background(), OraclePredictMethod, &PredictRequest{VenueID: "aave"}, &resp, CallOptions()...)
	require.NoError(t, err)
	assert.Equal(t, int64(640), resp.YieldBps)
	assert.Equal(t, int64(4), resp.RiskScore)
	assert.True(t, resp.Timestamp.Equal(time.Unix(1_700_000_000, 0)))
}

func TestCodec(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "json", c.Name())
	payload, err := c.Marshal(&QueryResponse{Liquidity: "100", YieldBps: 5})
	require.NoError(t, err)
	var out QueryResponse
	require.NoError(t, c.Unmarshal(payload, &out))
	assert.Equal(t, QueryResponse{Liquidity: "100", YieldBps: 5}, out)
}
