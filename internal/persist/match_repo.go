package persist

import (
	"context"
	"fmt"

	"github.com/arenasim/server/internal/stats"
	"github.com/jackc/pgx/v5"
)

// MatchRepo stores finished matches. It satisfies stats.Sink.
type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// Record writes a match and its player lines in one transaction.
func (r *MatchRepo) Record(ctx context.Context, res stats.MatchResult) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var winner *string
	if res.Winner != "" {
		winner = &res.Winner
	}
	var matchID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO matches (generation, finished_at, duration, reason, winner)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		int32(res.Generation), res.FinishedAt, res.Duration, res.Reason, winner,
	).Scan(&matchID)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range res.Players {
		batch.Queue(
			`INSERT INTO match_players
			   (match_id, agent, shots, hits, kills, collisions, score, health_left, survival, winner)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			matchID, p.Agent, p.Shots, p.Hits, p.Kills, p.Collisions, p.Score, p.HealthLeft, p.Survival, p.Winner,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert match players: %w", err)
	}
	return tx.Commit(ctx)
}
