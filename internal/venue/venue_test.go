package venue

import (
	"context"
	"net"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/rpc"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

func TestRegistryOrderAndLimits(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reg := NewRegistry(2)
	handle := NewMemoryVenue(500, sdkmath.NewInt(1000))

	info, err := reg.Register(types.VenueInfo{ID: "b", RiskScore: 100, Compliant: true}, handle, now)
	require.NoError(t, err)
	assert.Equal(t, now, info.RegisteredAt)
	_, err = reg.Register(types.VenueInfo{ID: "a", RiskScore: 100}, handle, now)
	require.NoError(t, err)

	_, err = reg.Register(types.VenueInfo{ID: "c"}, handle, now)
	assert.ErrorIs(t, err, types.ErrResourceExhaustion)
	_, err = reg.Register(types.VenueInfo{ID: "a"}, handle, now)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, types.VenueID("b"), list[0].Info.ID, "registration order, not lexical")
	assert.Equal(t, types.VenueID("a"), list[1].Info.ID)

	require.NoError(t, reg.Remove("b"))
	assert.ErrorIs(t, reg.Remove("b"), types.ErrNotFound)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryValidation(t *testing.T) {
	reg := NewRegistry(5)
	h := NewMemoryVenue(500, sdkmath.NewInt(1000))
	now := time.Now()

	_, err := reg.Register(types.VenueInfo{}, h, now)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = reg.Register(types.VenueInfo{ID: "a"}, nil, now)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = reg.Register(types.VenueInfo{ID: "a", RiskScore: types.MaxRiskScore + 1}, h, now)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = reg.Register(types.VenueInfo{ID: "a", RiskScore: 10}, h, now)
	require.NoError(t, err)
	info, err := reg.UpdateInfo("a", true, 2500)
	require.NoError(t, err)
	assert.True(t, info.Compliant)
	assert.Equal(t, int64(2500), info.RiskScore)

	_, err = reg.UpdateInfo("missing", true, 10)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryVenue(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryVenue(700, sdkmath.NewInt(1000))

	require.NoError(t, m.Deposit(ctx, sdkmath.NewInt(400)))
	liquidity, yield, err := m.Query(ctx, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, "600", liquidity.String())
	assert.Equal(t, int64(700), yield)

	assert.ErrorIs(t, m.Deposit(ctx, sdkmath.NewInt(601)), ErrInsufficientBalance)

	actual, err := m.Withdraw(ctx, sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "400", actual.String())
	assert.True(t, m.Balance().IsZero())
}

type fakeVenueServer struct {
	deposited sdkmath.Int
}

func (f *fakeVenueServer) Query(_ context.Context, req *rpc.QueryRequest) (*rpc.QueryResponse, error) {
	return &rpc.QueryResponse{Liquidity: "5000000", YieldBps: 820}, nil
}

func (f *fakeVenueServer) Deposit(_ context.Context, req *rpc.TransferRequest) (*rpc.TransferResponse, error) {
	amount, _ := sdkmath.NewIntFromString(req.Amount)
	f.deposited = f.deposited.Add(amount)
	return &rpc.TransferResponse{Amount: req.Amount}, nil
}

func (f *fakeVenueServer) Withdraw(_ context.Context, req *rpc.TransferRequest) (*rpc.TransferResponse, error) {
	return &rpc.TransferResponse{Amount: "250"}, nil
}

func TestGRPCHandle(t *testing.T) {
	fake := &fakeVenueServer{deposited: sdkmath.ZeroInt()}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterVenueServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h := NewGRPCHandle("remote", conn)
	ctx := context.Background()

	liquidity, yield, err := h.Query(ctx, sdkmath.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "5000000", liquidity.String())
	assert.Equal(t, int64(820), yield)

	require.NoError(t, h.Deposit(ctx, sdkmath.NewInt(300)))
	assert.Equal(t, "300", fake.deposited.String())

	actual, err := h.Withdraw(ctx, sdkmath.NewInt(300))
	require.NoError(t, err)
	assert.Equal(t, "250", actual.String())
}
