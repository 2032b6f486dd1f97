package session

import (
	"sync"
	"testing"
	"time"

	"predixa/cmd/identity"
	"predixa/cmd/security/password"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
	testPassword      = "plant-floor-42"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Issuer = "predixa-test"
	cfg.AccessSecret = []byte(testAccessSecret)
	cfg.RefreshSecret = []byte(testRefreshSecret)
	return cfg
}

func mustCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func cheapPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

// testClock is a settable clock shared by the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type serviceFixture struct {
	svc   *Service
	users *identity.DemoDirectory
	store *MemoryStore
	clock *testClock
	m     *Metrics
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()

	pw := cheapPasswordConfig()
	users, err := identity.NewDemoDirectory(pw, identity.DefaultDemoUsers(testPassword)...)
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}

	store := NewMemoryStore()
	clock := newTestClock()
	m := NewMetrics(nil)

	svc, err := NewService(mustCodec(t), users, store,
		WithClock(clock.Now),
		WithMetrics(m),
		WithPasswordConfig(pw),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return serviceFixture{svc: svc, users: users, store: store, clock: clock, m: m}
}
