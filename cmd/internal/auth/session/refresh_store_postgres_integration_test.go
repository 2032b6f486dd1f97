package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"predixa/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when PREDIXA_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresRefreshStore_AddContainsRemove(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)
	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyRefreshSchema(t, pool, schema)

	st := mustNewRefreshStore(t, pool, schema)
	ctx := context.Background()
	now := time.Now().UTC()
	pid := testPrincipalID(t, now)

	if err := st.Add(ctx, pid, "tok-a", now.Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.Add(ctx, pid, "tok-a", now.Add(time.Hour)); err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}

	ok, err := st.Contains(ctx, pid, "tok-a", now)
	if err != nil || !ok {
		t.Fatalf("expected live token: ok=%v err=%v", ok, err)
	}

	if err := st.Remove(ctx, pid, "tok-a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := st.Remove(ctx, pid, "tok-a"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if ok, _ := st.Contains(ctx, pid, "tok-a", now); ok {
		t.Fatalf("removed token still live")
	}
}

func TestPostgresRefreshStore_PruneAndRotate(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)
	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyRefreshSchema(t, pool, schema)

	st := mustNewRefreshStore(t, pool, schema)
	ctx := context.Background()
	now := time.Now().UTC()
	pid := testPrincipalID(t, now)

	_ = st.Add(ctx, pid, "short", now.Add(time.Minute))
	_ = st.Add(ctx, pid, "r1", now.Add(time.Hour))

	n, err := st.Prune(ctx, pid, now.Add(2*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("Prune: n=%d err=%v", n, err)
	}

	if err := st.Rotate(ctx, pid, "r1", "r2", now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := st.Rotate(ctx, pid, "r1", "r3", now.Add(2*time.Hour), now); !errors.Is(err, ErrRefreshNotLive) {
		t.Fatalf("expected ErrRefreshNotLive on replay, got %v", err)
	}
	if ok, _ := st.Contains(ctx, pid, "r2", now); !ok {
		t.Fatalf("replacement not live")
	}
	if ok, _ := st.Contains(ctx, pid, "r3", now); ok {
		t.Fatalf("failed rotation wrote its token")
	}
}

func TestPostgresRefreshStore_ConcurrentRotateExactlyOne(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)
	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyRefreshSchema(t, pool, schema)

	st := mustNewRefreshStore(t, pool, schema)
	ctx := context.Background()
	now := time.Now().UTC()
	pid := testPrincipalID(t, now)

	if err := st.Add(ctx, pid, "r1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := st.Rotate(ctx, pid, "r1", fmt.Sprintf("next-%d", i), now.Add(time.Hour), now)
			if err == nil {
				success.Add(1)
			} else if !errors.Is(err, ErrRefreshNotLive) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := success.Load(); got != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", got)
	}
}

// ---- helpers ----

func mustNewRefreshStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PREDIXA_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PREDIXA_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PREDIXA_DATABASE_URL set): %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "predixa_it_" + strings.ToLower(testPrincipalID(t, time.Now().UTC()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyRefreshSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ddl := fmt.Sprintf(`
CREATE TABLE %s (
  user_id TEXT NOT NULL,
  token_hash TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_refresh_tokens_hash_len CHECK (char_length(token_hash) = 64),
  PRIMARY KEY (user_id, token_hash)
);`, pgx.Identifier{schema, "refresh_tokens"}.Sanitize())

	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}

func testPrincipalID(t *testing.T, now time.Time) string {
	t.Helper()
	id, err := ids.NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	return id
}
