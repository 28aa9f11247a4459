package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

// Postgres persists suspended bundles and completed results. Schema:
//
//	CREATE TABLE suspended_matches (
//	    match_id   TEXT PRIMARY KEY,
//	    game_type  TEXT NOT NULL,
//	    seed       BIGINT NOT NULL,
//	    public     JSONB NOT NULL,
//	    private    JSONB NOT NULL,
//	    saved_at   TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE completed_matches (
//	    match_id     TEXT PRIMARY KEY,
//	    winner_uid   TEXT NOT NULL,
//	    reason       TEXT NOT NULL,
//	    draw         BOOLEAN NOT NULL,
//	    stats        JSONB NOT NULL,
//	    completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) SaveSuspended(ctx context.Context, bundle room.SuspendedBundle) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO suspended_matches (match_id, game_type, seed, public, private, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id) DO UPDATE SET
			game_type = EXCLUDED.game_type,
			seed      = EXCLUDED.seed,
			public    = EXCLUDED.public,
			private   = EXCLUDED.private,
			saved_at  = EXCLUDED.saved_at`,
		bundle.MatchID, bundle.GameType, bundle.Seed,
		[]byte(bundle.Public), []byte(bundle.Private), bundle.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save suspended match: %w", err)
	}
	return nil
}

func (p *Postgres) LoadSuspended(ctx context.Context, matchID string) (*room.SuspendedBundle, error) {
	var bundle room.SuspendedBundle
	var public, private []byte
	err := p.pool.QueryRow(ctx, `
		SELECT match_id, game_type, seed, public, private, saved_at
		FROM suspended_matches
		WHERE match_id = $1`,
		matchID,
	).Scan(&bundle.MatchID, &bundle.GameType, &bundle.Seed, &public, &private, &bundle.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load suspended match: %w", err)
	}
	bundle.Public = json.RawMessage(public)
	bundle.Private = json.RawMessage(private)
	return &bundle, nil
}

func (p *Postgres) FinalizeCompleted(ctx context.Context, matchID string, result game.Result) error {
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal match stats: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// ON CONFLICT DO NOTHING keeps the first recorded outcome when the
	// disposal-time fallback fires after the explicit finish already wrote.
	_, err = tx.Exec(ctx, `
		INSERT INTO completed_matches (match_id, winner_uid, reason, draw, stats)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id) DO NOTHING`,
		matchID, result.WinnerUID, result.Reason, result.Draw, stats,
	)
	if err != nil {
		return fmt.Errorf("failed to record completed match: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM suspended_matches WHERE match_id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("failed to clear suspended match: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}
	return nil
}
