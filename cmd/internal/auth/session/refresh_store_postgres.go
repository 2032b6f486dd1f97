package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"predixa/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements RefreshStore over the refresh_tokens table.
//
// Only token digests are persisted. Rotate runs in one transaction holding a
// per-principal advisory lock, so rotations for one principal are serialized across
// every process sharing the database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the store (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_tokens"}.Sanitize()
}

// Add implements RefreshStore.
func (s *PostgresStore) Add(ctx context.Context, principalID, tok string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		principalID,
		token.HashRefreshTokenHex(tok),
		expiresAt.UTC(),
	)
	return err
}

// Remove implements RefreshStore.
func (s *PostgresStore) Remove(ctx context.Context, principalID, tok string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE user_id = $1 AND token_hash = $2`,
		principalID,
		token.HashRefreshTokenHex(tok),
	)
	return err
}

// Contains implements RefreshStore.
func (s *PostgresStore) Contains(ctx context.Context, principalID, tok string, now time.Time) (bool, error) {
	if _, err := s.Prune(ctx, principalID, now); err != nil {
		return false, err
	}

	var live bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM `+s.table()+`
		    WHERE user_id = $1 AND token_hash = $2 AND expires_at > $3
		 )`,
		principalID,
		token.HashRefreshTokenHex(tok),
		now.UTC(),
	).Scan(&live)
	if err != nil {
		return false, err
	}
	return live, nil
}

// Prune implements RefreshStore.
func (s *PostgresStore) Prune(ctx context.Context, principalID string, now time.Time) (int, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE user_id = $1 AND expires_at <= $2`,
		principalID,
		now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// Rotate implements RefreshStore.
func (s *PostgresStore) Rotate(ctx context.Context, principalID, oldTok, newTok string, newExpiresAt, now time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize with other rotations for this principal.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, principalID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE user_id = $1 AND expires_at <= $2`,
		principalID, now.UTC(),
	); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE user_id = $1 AND token_hash = $2`,
		principalID, token.HashRefreshTokenHex(oldTok),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrRefreshNotLive
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table()+` (user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		principalID, token.HashRefreshTokenHex(newTok), newExpiresAt.UTC(), now.UTC(),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

var _ RefreshStore = (*PostgresStore)(nil)
