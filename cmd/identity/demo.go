package identity

import (
	"context"
	"sync"
	"time"

	"predixa/cmd/security/password"
)

// DemoUser seeds one principal into a DemoDirectory.
type DemoUser struct {
	Email    string
	Name     string
	Password string
	Role     Role
	OrgID    string
}

// DefaultDemoUsers returns the principals seeded for local runs without Postgres.
// Two share the demo plant organization; the viewer has none and never receives broadcasts.
func DefaultDemoUsers(pw string) []DemoUser {
	return []DemoUser{
		{Email: "admin@predixa.local", Name: "Plant Admin", Password: pw, Role: RoleAdmin, OrgID: "org-demo-plant"},
		{Email: "operator@predixa.local", Name: "Line Operator", Password: pw, Role: RoleOperator, OrgID: "org-demo-plant"},
		{Email: "viewer@predixa.local", Name: "Guest Viewer", Password: pw, Role: RoleUser},
	}
}

// DemoDirectory is an in-memory Directory. It supports registration so the full
// auth flow works without a database; contents are lost on restart.
type DemoDirectory struct {
	pw password.Config

	mu      sync.RWMutex
	byID    map[string]UserAuth
	byEmail map[string]string
}

// NewDemoDirectory hashes and inserts seed users.
func NewDemoDirectory(pw password.Config, seed ...DemoUser) (*DemoDirectory, error) {
	d := &DemoDirectory{
		pw:      pw,
		byID:    make(map[string]UserAuth),
		byEmail: make(map[string]string),
	}
	for _, su := range seed {
		_, err := d.CreateUser(context.Background(), CreateUserInput{
			Email:    su.Email,
			Name:     su.Name,
			Password: su.Password,
			Role:     su.Role,
			OrgID:    su.OrgID,
		})
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// CreateUser implements Directory.
func (d *DemoDirectory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.DemoDirectory.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	// Hash outside the lock; argon2id is deliberately slow.
	pwHash, err := HashPassword(d.pw, in.Password)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[u.Email]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	d.byID[u.ID] = UserAuth{User: u, PasswordHash: pwHash}
	d.byEmail[u.Email] = u.ID
	return u, nil
}

// GetUserByID implements Directory.
func (d *DemoDirectory) GetUserByID(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	ua, ok := d.byID[id]
	d.mu.RUnlock()

	if !ok {
		return User{}, NotFoundError{Op: "identity.DemoDirectory.GetUserByID", Resource: "user"}
	}
	return ua.User, nil
}

// GetUserAuthByEmail implements Directory.
func (d *DemoDirectory) GetUserAuthByEmail(_ context.Context, email string) (UserAuth, error) {
	norm := NormalizeEmail(email)

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[norm]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.DemoDirectory.GetUserAuthByEmail", Resource: "user"}
	}
	return d.byID[id], nil
}

// Len returns the number of principals.
func (d *DemoDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
