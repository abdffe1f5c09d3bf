package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/state"
)

// ModePaper settles plans against venue handles without a custody contract.
const ModePaper = "paper"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the zerolog level name. Defaults to info.
	LogLevel string
	// LogFile optionally mirrors logs to a file.
	LogFile string

	// EngineAuthority is the only caller allowed to mutate engine state.
	EngineAuthority string
	// EngineMode selects the settlement collaborator. Only "paper" is supported.
	EngineMode string
	// InitialCapital seeds the paper vault.
	InitialCapital sdkmath.Int

	// WebPort is the HTTP API port.
	WebPort string

	// CycleInterval drives RunLoop when CycleCron is empty.
	CycleInterval time.Duration
	// CycleCron is a six-field cron spec. When set it replaces the fixed interval.
	CycleCron string

	// Database holds the PostgreSQL connection settings. DatabaseEnabled is false when DB_NAME is unset.
	Database        state.DBConfig
	DatabaseEnabled bool
)

// LoadDotEnv reads .env into the process environment if the file exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
}

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	EngineAuthority, err = getEnv("ENGINE_AUTHORITY")
	if err != nil {
		return err
	}
	if strings.TrimSpace(EngineAuthority) == "" {
		return errors.New("environment variable ENGINE_AUTHORITY cannot be empty")
	}

	EngineMode = getEnvOrDefault("ENGINE_MODE", ModePaper)
	if EngineMode != ModePaper {
		return errors.New("ENGINE_MODE must be \"" + ModePaper + "\", got: " + EngineMode)
	}

	InitialCapital, err = getEnvAsAmount("INITIAL_CAPITAL", sdkmath.ZeroInt())
	if err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	CycleInterval, err = getEnvAsDuration("CYCLE_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}
	if CycleInterval <= 0 {
		return errors.New("CYCLE_INTERVAL must be positive")
	}
	CycleCron = getEnvOrDefault("CYCLE_CRON", "")

	if err := LoadDatabaseConfig(); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Authority", EngineAuthority).
		Str("Mode", EngineMode).
		Dur("CycleInterval", CycleInterval).
		Str("CycleCron", CycleCron).
		Bool("Database", DatabaseEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// LoadDatabaseConfig reads the DB_* variables only. Used by tooling that does not run the engine.
func LoadDatabaseConfig() error {
	Database = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", ""),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	DatabaseEnabled = Database.DBName != ""

	port, err := getEnvAsUint64OrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	Database.Port = int(port)

	if DatabaseEnabled && Database.User == "" {
		return errors.New("environment variable DB_USER is required when DB_NAME is set")
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64OrDefault retrieves an optional environment variable as a uint64.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration accepts Go duration strings ("90s", "10m").
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsAmount(key string, fallback sdkmath.Int) (sdkmath.Int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a non-negative integer amount, got: " + valueStr)
	}
	return value, nil
}
