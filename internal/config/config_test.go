package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "LOG_FILE", "ENGINE_MODE", "INITIAL_CAPITAL", "WEB_PORT", "CYCLE_INTERVAL", "CYCLE_CRON",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"ORACLE_ENDPOINTS", "VENUE_ENDPOINTS", "OFFCHAIN_VENUES", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_AUTHORITY", "gov")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "gov", EngineAuthority)
	assert.Equal(t, ModePaper, EngineMode)
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, 10*time.Minute, CycleInterval)
	assert.True(t, InitialCapital.IsZero())
	assert.False(t, DatabaseEnabled)
	assert.Equal(t, 5432, Database.Port)
	assert.Empty(t, OracleEndpoints)
	assert.Empty(t, RedisAddr)
}

func TestLoadConfigFull(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_AUTHORITY", "gov")
	t.Setenv("INITIAL_CAPITAL", "1000000000000000000000")
	t.Setenv("CYCLE_INTERVAL", "90s")
	t.Setenv("CYCLE_CRON", "0 */5 * * * *")
	t.Setenv("DB_NAME", "engine")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("ORACLE_ENDPOINTS", "a=6000@oracle-a:9000, b=4000@oracle-b:9000")
	t.Setenv("VENUE_ENDPOINTS", "aave-usdc=1200@aave:9100,curve@curve:9100")
	t.Setenv("OFFCHAIN_VENUES", "curve")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "1000000000000000000000", InitialCapital.String())
	assert.Equal(t, 90*time.Second, CycleInterval)
	assert.Equal(t, "0 */5 * * * *", CycleCron)
	assert.True(t, DatabaseEnabled)
	assert.Equal(t, 6543, Database.Port)
	require.Len(t, OracleEndpoints, 2)
	assert.Equal(t, OracleEndpoint{ID: "b", WeightBps: 4000, Address: "oracle-b:9000"}, OracleEndpoints[1])
	require.Len(t, VenueEndpoints, 2)
	assert.Equal(t, VenueEndpoint{ID: "aave-usdc", RiskScore: 1200, Address: "aave:9100"}, VenueEndpoints[0])
	assert.Equal(t, VenueEndpoint{ID: "curve", Address: "curve:9100"}, VenueEndpoints[1])
	assert.True(t, OffChainVenues["curve"])
	assert.Equal(t, "localhost:6379", RedisAddr)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing authority": {"ENGINE_AUTHORITY": ""},
		"live mode":         {"ENGINE_AUTHORITY": "gov", "ENGINE_MODE": "live"},
		"bad interval":      {"ENGINE_AUTHORITY": "gov", "CYCLE_INTERVAL": "soon"},
		"negative capital":  {"ENGINE_AUTHORITY": "gov", "INITIAL_CAPITAL": "-5"},
		"db without user":   {"ENGINE_AUTHORITY": "gov", "DB_NAME": "engine"},
		"bad oracle entry":  {"ENGINE_AUTHORITY": "gov", "ORACLE_ENDPOINTS": "a@host:1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			assert.Error(t, LoadConfig())
		})
	}
}

func TestParseEndpoints(t *testing.T) {
	_, err := ParseVenueEndpoints("nohost")
	assert.Error(t, err)
	_, err = ParseVenueEndpoints("v=abc@host:1")
	assert.Error(t, err)
	_, err = ParseVenueEndpoints("v=10001@host:1")
	assert.Error(t, err)
	_, err = ParseOracleEndpoints("=100@host:1")
	assert.Error(t, err)

	eps, err := ParseOracleEndpoints("")
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestDefaultEngineParametersAreValid(t *testing.T) {
	require.NoError(t, DefaultEngineParameters.Validate())
}
