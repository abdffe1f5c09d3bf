package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveEngineParameters stores a new version of the engine parameters. When makeActive is set
// every previously active version is deactivated in the same transaction.
func SaveEngineParameters(ctx context.Context, params types.EngineParameters, version int, makeActive bool, updatedBy string) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal engine parameters: %w", err)
	}

	var paramsID int64
	err = withTx(ctx, func(tx *sql.Tx) error {
		if makeActive {
			if _, err := tx.ExecContext(ctx, `UPDATE engine_parameters SET is_active = FALSE WHERE is_active = TRUE;`); err != nil {
				return fmt.Errorf("failed to deactivate existing active parameters: %w", err)
			}
		}
		const stmt = `
			INSERT INTO engine_parameters (version, is_active, activated_at, updated_by, params)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING params_id;`
		if err := tx.QueryRowContext(ctx, stmt, version, makeActive, time.Now(), updatedBy, paramsJSON).Scan(&paramsID); err != nil {
			return fmt.Errorf("failed to insert engine parameters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Int("version", version).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Str("updated_by", updatedBy).
		Msg("Saved engine parameters")
	return paramsID, nil
}

// LoadActiveEngineParameters loads the active parameters and their version. It returns
// (nil, 0, nil) when nothing has been stored yet.
func LoadActiveEngineParameters(ctx context.Context) (*types.EngineParameters, int, error) {
	if DB == nil {
		return nil, 0, ErrNotInitialized
	}

	const query = `
		SELECT version, params
		FROM engine_parameters
		WHERE is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		version int
		raw     []byte
	)
	err := DB.QueryRowContext(ctx, query).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Msg("No active engine parameters found")
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load active engine parameters: %w", err)
	}

	p := &types.EngineParameters{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal engine parameters version %d: %w", version, err)
	}
	log.Info().Int("version", version).Msg("Loaded active engine parameters")
	return p, version, nil
}
