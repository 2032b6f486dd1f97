package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"predixa/cmd/security/password"
)

func cheapPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestDemoDirectory_SeedAndLookup(t *testing.T) {
	t.Parallel()

	pw := cheapPasswordConfig()
	d, err := NewDemoDirectory(pw, DefaultDemoUsers("plant-floor-42")...)
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}
	if d.Len() != 3 {
		t.Fatalf("expected 3 seeded users, got %d", d.Len())
	}

	ctx := context.Background()
	ua, err := d.GetUserAuthByEmail(ctx, "  OPERATOR@predixa.local ")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.User.Role != RoleOperator || ua.User.OrgID != "org-demo-plant" {
		t.Fatalf("unexpected operator: %+v", ua.User)
	}

	ok, err := VerifyPassword(pw, "plant-floor-42", ua.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected password match: ok=%v err=%v", ok, err)
	}

	byID, err := d.GetUserByID(ctx, ua.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != "operator@predixa.local" {
		t.Fatalf("unexpected email: %q", byID.Email)
	}

	viewer, err := d.GetUserAuthByEmail(ctx, "viewer@predixa.local")
	if err != nil {
		t.Fatalf("viewer lookup: %v", err)
	}
	if viewer.User.HasOrg() {
		t.Fatalf("viewer must not belong to an organization")
	}
}

func TestDemoDirectory_NotFound(t *testing.T) {
	t.Parallel()

	d, err := NewDemoDirectory(cheapPasswordConfig())
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}

	_, err = d.GetUserAuthByEmail(context.Background(), "nobody@predixa.local")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = d.GetUserByID(context.Background(), "01J0000000000000000000000")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDemoDirectory_CreateUser_Conflict(t *testing.T) {
	t.Parallel()

	d, err := NewDemoDirectory(cheapPasswordConfig())
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}

	ctx := context.Background()
	u, err := d.CreateUser(ctx, CreateUserInput{Email: "A@x.com", Name: "  Ada   Lovelace ", Password: "secret123"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "a@x.com" || u.Name != "Ada Lovelace" || u.Role != RoleUser {
		t.Fatalf("unexpected normalized user: %+v", u)
	}

	_, err = d.CreateUser(ctx, CreateUserInput{Email: "a@X.com", Name: "Other", Password: "secret456"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestDemoDirectory_CreateUser_InvalidInput(t *testing.T) {
	t.Parallel()

	d, err := NewDemoDirectory(cheapPasswordConfig())
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}

	cases := []CreateUserInput{
		{Email: "", Name: "N", Password: "secret123"},
		{Email: "a@x.com", Name: "  ", Password: "secret123"},
		{Email: "a@x.com", Name: "Ann", Password: ""},
		{Email: "a@x.com", Name: "Ann", Password: "short"},
		{Email: "a@x.com", Name: "Ann", Password: "secret123", Role: Role("root")},
	}
	for i, in := range cases {
		if _, err := d.CreateUser(context.Background(), in); !IsInvalidInput(err) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestDemoDirectory_ConcurrentRegistrationSameEmail(t *testing.T) {
	t.Parallel()

	d, err := NewDemoDirectory(cheapPasswordConfig())
	if err != nil {
		t.Fatalf("NewDemoDirectory: %v", err)
	}

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.CreateUser(context.Background(), CreateUserInput{Email: "race@x.com", Name: "Racer", Password: "secret123"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != n-1 {
		t.Fatalf("expected exactly one registration, got ok=%d conflicts=%d", ok, conflicts)
	}
}
