// Package claim provides the atomic insert-if-absent primitive that makes
// automation runs idempotent. A key can be claimed exactly once; claims are
// never released.
package claim

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// Claimer atomically records a dedupe key.
// Claim returns true only for the first caller to present a given key.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// NewClaimer creates a claimer using the requested backend.
// If redisClient is non-nil, uses Redis SET NX.
// Otherwise falls back to the PostgreSQL claims table.
func NewClaimer(redisClient *redis.Client, db *sql.DB) Claimer {
	if redisClient != nil {
		return NewRedisClaimer(redisClient)
	}
	return NewPGClaimer(db)
}

// PGClaimer implements Claimer with a primary-key insert into
// automation_claims. The unique constraint is the compare-and-swap.
type PGClaimer struct {
	db *sql.DB
}

// NewPGClaimer creates a PostgreSQL-backed claimer.
func NewPGClaimer(db *sql.DB) *PGClaimer {
	return &PGClaimer{db: db}
}

// Claim inserts the key, reporting whether this call created the row.
func (c *PGClaimer) Claim(ctx context.Context, key string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO automation_claims (dedupe_key, claimed_at) VALUES ($1, NOW())
		 ON CONFLICT (dedupe_key) DO NOTHING`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
