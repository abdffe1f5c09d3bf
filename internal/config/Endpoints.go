package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/utils"
)

// OracleEndpoint is one oracle source reachable over gRPC.
type OracleEndpoint struct {
	ID        string
	WeightBps int64
	Address   string
}

// VenueEndpoint is one venue reachable over gRPC.
type VenueEndpoint struct {
	ID        string
	RiskScore int64
	Address   string
}

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OracleEndpoints come from ORACLE_ENDPOINTS="id=weight@host:port,...".
	OracleEndpoints []OracleEndpoint
	// VenueEndpoints come from VENUE_ENDPOINTS="id@host:port,..." or "id=risk@host:port,...".
	VenueEndpoints []VenueEndpoint
	// OffChainVenues lists venue ids that cannot be priced without oracle data.
	OffChainVenues map[string]bool

	// RedisAddr enables the venue snapshot mirror when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	OracleEndpoints, err = ParseOracleEndpoints(getEnvOrDefault("ORACLE_ENDPOINTS", ""))
	if err != nil {
		return err
	}

	VenueEndpoints, err = ParseVenueEndpoints(getEnvOrDefault("VENUE_ENDPOINTS", ""))
	if err != nil {
		return err
	}

	OffChainVenues = make(map[string]bool)
	for _, id := range splitList(getEnvOrDefault("OFFCHAIN_VENUES", "")) {
		OffChainVenues[id] = true
	}

	RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	redisDB, err := getEnvAsUint64OrDefault("REDIS_DB", 0)
	if err != nil {
		return err
	}
	RedisDB = int(redisDB)

	log.Debug().
		Int("OracleEndpoints", len(OracleEndpoints)).
		Int("VenueEndpoints", len(VenueEndpoints)).
		Str("RedisAddr", RedisAddr).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// ParseOracleEndpoints parses "id=weight@host:port" entries separated by commas.
func ParseOracleEndpoints(raw string) ([]OracleEndpoint, error) {
	var out []OracleEndpoint
	for _, entry := range splitList(raw) {
		name, address, err := splitAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("ORACLE_ENDPOINTS: %w", err)
		}
		id, weightStr, found := strings.Cut(name, "=")
		if !found || id == "" {
			return nil, fmt.Errorf("ORACLE_ENDPOINTS: entry %q must be id=weight@host:port", entry)
		}
		weight, err := strconv.ParseInt(weightStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ORACLE_ENDPOINTS: entry %q has invalid weight: %w", entry, err)
		}
		out = append(out, OracleEndpoint{ID: id, WeightBps: weight, Address: address})
	}
	return out, nil
}

// ParseVenueEndpoints parses "id@host:port" or "id=risk@host:port" entries separated by commas.
func ParseVenueEndpoints(raw string) ([]VenueEndpoint, error) {
	var out []VenueEndpoint
	for _, entry := range splitList(raw) {
		name, address, err := splitAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("VENUE_ENDPOINTS: %w", err)
		}
		ep := VenueEndpoint{ID: name, Address: address}
		if id, riskStr, found := strings.Cut(name, "="); found {
			risk, err := strconv.ParseInt(riskStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("VENUE_ENDPOINTS: entry %q has invalid risk score: %w", entry, err)
			}
			if err := utils.ValidateBps(risk, types.MaxRiskScore); err != nil {
				return nil, fmt.Errorf("VENUE_ENDPOINTS: entry %q: %w", entry, err)
			}
			ep.ID, ep.RiskScore = id, risk
		}
		if ep.ID == "" {
			return nil, fmt.Errorf("VENUE_ENDPOINTS: entry %q has no id", entry)
		}
		out = append(out, ep)
	}
	return out, nil
}

func splitAddress(entry string) (string, string, error) {
	name, address, found := strings.Cut(entry, "@")
	if !found || address == "" {
		return "", "", fmt.Errorf("entry %q has no @host:port", entry)
	}
	return name, address, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
