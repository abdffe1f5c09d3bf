package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var ErrNotInitialized = fmt.Errorf("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// SchemaSQL creates every table the engine persists to. Safe to run repeatedly.
const SchemaSQL = `
	CREATE TABLE IF NOT EXISTS engine_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_by VARCHAR(255) NOT NULL DEFAULT '',
		params JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_engine_parameters_active ON engine_parameters(is_active, activated_at DESC);

	-- Live fee rates, written only by executed fee proposals
	CREATE TABLE IF NOT EXISTS fee_rates (
		id INTEGER PRIMARY KEY DEFAULT 1,
		management_fee_bps INTEGER NOT NULL,
		performance_fee_bps INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fee_rates_single_row CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS fee_proposals (
		proposal_id CHAR(64) PRIMARY KEY,
		management_fee_bps INTEGER NOT NULL,
		performance_fee_bps INTEGER NOT NULL,
		proposed_at TIMESTAMPTZ NOT NULL,
		executable_at TIMESTAMPTZ NOT NULL,
		nonce BIGINT NOT NULL UNIQUE,
		proposer VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		resolved_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_fee_proposals_status ON fee_proposals(status);

	CREATE TABLE IF NOT EXISTS allocations (
		venue_id VARCHAR(255) PRIMARY KEY,
		cycle_id VARCHAR(64) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		yield_bps INTEGER NOT NULL,
		allocated_at TIMESTAMPTZ NOT NULL,
		leveraged BOOLEAN NOT NULL DEFAULT FALSE,
		borrow_amount NUMERIC(78, 0) NOT NULL DEFAULT 0,
		ltv_bps INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cycle_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		cycle_id VARCHAR(64) NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		total_capital NUMERIC(78, 0) NOT NULL,
		plan JSONB,
		skipped_venues TEXT[],
		fallback_venues TEXT[],
		circuit_breaker BOOLEAN NOT NULL DEFAULT FALSE,
		management_fee_bps INTEGER NOT NULL,
		performance_fee_bps INTEGER NOT NULL,
		settlement JSONB,
		error TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);
	INSERT INTO cycle_counter (id, current_cycle) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

// DropSQL removes every engine table.
const DropSQL = `
	DROP TABLE IF EXISTS cycle_snapshots CASCADE;
	DROP TABLE IF EXISTS allocations CASCADE;
	DROP TABLE IF EXISTS fee_proposals CASCADE;
	DROP TABLE IF EXISTS fee_rates CASCADE;
	DROP TABLE IF EXISTS engine_parameters CASCADE;
	DROP TABLE IF EXISTS cycle_counter CASCADE;
`

// EnsureSchema applies the DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}
	if _, err := DB.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if DB == nil {
		return ErrNotInitialized
	}
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
