// internal/nonce/store_sql.go
package nonce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// SQLRegistry persists nonces in the nonces table (sqlite or postgres, see
// internal/db for the schema). The INSERT is the atomicity point: the value
// is durable before Issue returns, and the primary key makes a duplicate
// value impossible.
type SQLRegistry struct {
	DB  *sql.DB
	TTL time.Duration // <=0 defaults to one hour

	// Clock override (tests).
	Now func() time.Time

	useCount atomic.Uint64
}

func (r *SQLRegistry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return time.Hour
}

func (r *SQLRegistry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *SQLRegistry) Issue(ctx context.Context) (Nonce, error) {
	v, err := NewValue()
	if err != nil {
		return Nonce{}, err
	}
	now := r.now()
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO nonces (value, created_at) VALUES ($1,$2)`,
		v, now.Unix()); err != nil {
		return Nonce{}, fmt.Errorf("nonce: persist: %w", err)
	}
	// Opportunistic age-out so the table stays bounded.
	if r.useCount.Add(1)%512 == 0 {
		cutoff := now.Add(-r.ttl()).Unix()
		_, _ = r.DB.ExecContext(ctx, `DELETE FROM nonces WHERE created_at < $1`, cutoff)
	}
	return Nonce{Value: v, CreatedAt: now}, nil
}

func (r *SQLRegistry) Consume(ctx context.Context, value string) (Result, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Unknown, errors.New("nonce: value required")
	}
	now := r.now()
	cutoff := now.Add(-r.ttl()).Unix()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE nonces SET consumed_at=$1
		WHERE value=$2 AND consumed_at IS NULL AND created_at >= $3`,
		now.Unix(), value, cutoff)
	if err != nil {
		return Unknown, fmt.Errorf("nonce: consume: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return Fresh, nil
	}

	var consumedAt sql.NullInt64
	err = r.DB.QueryRowContext(ctx,
		`SELECT consumed_at FROM nonces WHERE value=$1 AND created_at >= $2`,
		value, cutoff).Scan(&consumedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Unknown, nil
	case err != nil:
		return Unknown, fmt.Errorf("nonce: lookup: %w", err)
	case consumedAt.Valid:
		return AlreadyUsed, nil
	default:
		// Raced with another consumer between UPDATE and SELECT.
		return AlreadyUsed, nil
	}
}
