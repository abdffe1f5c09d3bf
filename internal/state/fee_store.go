package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/rs/zerolog/log"
)

const upsertProposalSQL = `
	INSERT INTO fee_proposals (
		proposal_id, management_fee_bps, performance_fee_bps,
		proposed_at, executable_at, nonce, proposer, status, resolved_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (proposal_id) DO UPDATE
	SET status = EXCLUDED.status,
	    resolved_at = EXCLUDED.resolved_at;`

func proposalArgs(p types.FeeProposal) []interface{} {
	var resolved sql.NullTime
	if p.ResolvedAt != nil {
		resolved = sql.NullTime{Time: *p.ResolvedAt, Valid: true}
	}
	return []interface{}{
		p.ID, p.ManagementFeeBps, p.PerformanceFeeBps,
		p.ProposedAt, p.ExecutableAt, int64(p.Nonce), p.Proposer, string(p.Status), resolved,
	}
}

// SaveFeeProposal inserts a proposal or updates its status.
func SaveFeeProposal(ctx context.Context, p types.FeeProposal) error {
	if DB == nil {
		return ErrNotInitialized
	}
	if _, err := DB.ExecContext(ctx, upsertProposalSQL, proposalArgs(p)...); err != nil {
		return fmt.Errorf("failed to save fee proposal %s: %w", p.ID, err)
	}
	log.Debug().Str("proposal_id", p.ID).Str("status", string(p.Status)).Msg("Saved fee proposal")
	return nil
}

// ExecuteFeeProposal marks the proposal executed and installs its rates in one transaction.
func ExecuteFeeProposal(ctx context.Context, p types.FeeProposal) error {
	err := withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertProposalSQL, proposalArgs(p)...); err != nil {
			return fmt.Errorf("failed to mark fee proposal %s executed: %w", p.ID, err)
		}
		const ratesSQL = `
			INSERT INTO fee_rates (id, management_fee_bps, performance_fee_bps, updated_at)
			VALUES (1, $1, $2, CURRENT_TIMESTAMP)
			ON CONFLICT (id) DO UPDATE
			SET management_fee_bps = EXCLUDED.management_fee_bps,
			    performance_fee_bps = EXCLUDED.performance_fee_bps,
			    updated_at = CURRENT_TIMESTAMP;`
		if _, err := tx.ExecContext(ctx, ratesSQL, p.ManagementFeeBps, p.PerformanceFeeBps); err != nil {
			return fmt.Errorf("failed to write fee rates: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("proposal_id", p.ID).
		Int64("management_fee_bps", p.ManagementFeeBps).
		Int64("performance_fee_bps", p.PerformanceFeeBps).
		Msg("Persisted executed fee proposal")
	return nil
}

// LoadFeeProposals returns every stored proposal ordered by nonce.
func LoadFeeProposals(ctx context.Context) ([]types.FeeProposal, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	const query = `
		SELECT proposal_id, management_fee_bps, performance_fee_bps,
		       proposed_at, executable_at, nonce, proposer, status, resolved_at
		FROM fee_proposals
		ORDER BY nonce ASC;`

	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee proposals: %w", err)
	}
	defer rows.Close()

	var out []types.FeeProposal
	for rows.Next() {
		var (
			p        types.FeeProposal
			nonce    int64
			status   string
			resolved sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.ManagementFeeBps, &p.PerformanceFeeBps,
			&p.ProposedAt, &p.ExecutableAt, &nonce, &p.Proposer, &status, &resolved); err != nil {
			return nil, fmt.Errorf("failed to scan fee proposal: %w", err)
		}
		p.Nonce = uint64(nonce)
		p.Status = types.ProposalStatus(status)
		if resolved.Valid {
			t := resolved.Time
			p.ResolvedAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during fee proposal iteration: %w", err)
	}
	return out, nil
}

// LoadFeeRates returns the persisted live rates, or nil when none were ever executed.
func LoadFeeRates(ctx context.Context) (*types.FeeRates, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	var r types.FeeRates
	err := DB.QueryRowContext(ctx, `SELECT management_fee_bps, performance_fee_bps FROM fee_rates WHERE id = 1;`).
		Scan(&r.ManagementFeeBps, &r.PerformanceFeeBps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee rates: %w", err)
	}
	return &r, nil
}
