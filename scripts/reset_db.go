package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/config"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/state"
)

func main() {
	config.LoadDotEnv()
	logger.Initialize(os.Getenv("LOG_LEVEL"), "")
	log.Info().Msg("Starting database reset script...")

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if !config.DatabaseEnabled {
		log.Fatal().Msg("DB_NAME environment variable not set.")
	}

	dbCfg := config.Database
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if _, err := state.DB.Exec(state.DropSQL); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database reset complete!")
}
