package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry(2)

	require.NoError(t, reg.Register(&StaticSource{SourceID: "a"}, 1))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "b"}, types.MaxOracleWeightBps))

	err := reg.Register(&StaticSource{SourceID: "c"}, 100)
	assert.ErrorIs(t, err, types.ErrResourceExhaustion)

	err = reg.Register(&StaticSource{SourceID: "a"}, 100)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	assert.Equal(t, []types.OracleSourceInfo{{ID: "a", WeightBps: 1}, {ID: "b", WeightBps: 10000}}, reg.Infos())
}

func TestRegistryRejectsBadWeights(t *testing.T) {
	reg := NewRegistry(5)
	for _, w := range []int64{0, -1, types.MaxOracleWeightBps + 1} {
		err := reg.Register(&StaticSource{SourceID: "a"}, w)
		assert.ErrorIs(t, err, types.ErrConfiguration, "weight %d", w)
	}
	assert.ErrorIs(t, reg.Register(&StaticSource{}, 100), types.ErrConfiguration)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryRemoveKeepsOrder(t *testing.T) {
	reg := NewRegistry(3)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Register(&StaticSource{SourceID: id}, 100))
	}
	require.NoError(t, reg.Remove("b"))
	assert.ErrorIs(t, reg.Remove("b"), types.ErrNotFound)

	ids := []string{}
	for _, s := range reg.Sources() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	require.NoError(t, reg.Register(&StaticSource{SourceID: "d"}, 100))
	reg.SetMax(1)
	assert.Equal(t, 3, reg.Len())
	assert.ErrorIs(t, reg.Register(&StaticSource{SourceID: "e"}, 100), types.ErrResourceExhaustion)
}
