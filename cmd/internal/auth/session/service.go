package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"predixa/cmd/identity"
	"predixa/cmd/security/password"
)

// Service implements the session lifecycle: login, register, refresh with rotation,
// logout, and access-token authentication.
type Service struct {
	codec   *Codec
	users   identity.Directory
	store   RefreshStore
	pw      password.Config
	log     *slog.Logger
	now     func() time.Time
	metrics *Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches session counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPasswordConfig sets the argon2id parameters used to verify and dummy-verify passwords.
func WithPasswordConfig(cfg password.Config) Option {
	return func(s *Service) { s.pw = cfg }
}

// Issued is the result of a login, registration or refresh.
type Issued struct {
	User         identity.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     identity.Role
	OrgID    string
}

// NewService constructs a Service.
func NewService(codec *Codec, users identity.Directory, store RefreshStore, opts ...Option) (*Service, error) {
	if codec == nil || users == nil || store == nil {
		return nil, fmt.Errorf("session: nil dependency")
	}
	s := &Service{
		codec: codec,
		users: users,
		store: store,
		pw:    password.DefaultConfig(),
		log:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Login verifies credentials and issues a fresh session.
//
// Unknown email and wrong password are indistinguishable to the caller; an unknown email
// still pays for one argon2id verification.
func (s *Service) Login(ctx context.Context, email, plain string) (Issued, error) {
	ua, err := s.users.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			s.pw.VerifyDummy(plain)
			s.log.InfoContext(ctx, "auth.login.fail", "reason", "unknown_email")
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	ok, err := identity.VerifyPassword(s.pw, plain, ua.PasswordHash)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.login.hash_error", "user_id", ua.User.ID, "err", err)
		return Issued{}, ErrInvalidCredentials
	}
	if !ok {
		s.log.InfoContext(ctx, "auth.login.fail", "reason", "bad_password", "user_id", ua.User.ID)
		return Issued{}, ErrInvalidCredentials
	}

	return s.issue(ctx, ua.User, "login")
}

// Register creates a principal and issues a session for it.
//
// Returns ErrEmailTaken on duplicate email; input validation failures are returned as
// identity errors (identity.IsInvalidInput).
func (s *Service) Register(ctx context.Context, in RegisterInput) (Issued, error) {
	if err := s.pw.ValidateFor(in.Password, in.Email); err != nil {
		return Issued{}, identity.OpError{Op: "session.Register", Kind: identity.ErrInvalidInput, Msg: policyMessage(err)}
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:    in.Email,
		Name:     in.Name,
		Password: in.Password,
		Role:     in.Role,
		OrgID:    in.OrgID,
		Now:      s.now().UTC(),
	})
	if err != nil {
		if identity.IsConflict(err) {
			return Issued{}, ErrEmailTaken
		}
		return Issued{}, err
	}

	return s.issue(ctx, u, "register")
}

// Refresh rotates a refresh token: the presented token stops being live and a new
// access/refresh pair is returned.
//
// Errors:
//   - ErrUnauthenticated when token is empty.
//   - ErrInvalidRefreshToken when the token fails verification or its principal is gone.
//   - RefreshReplayError (wrapping ErrInvalidRefreshToken) when the token verifies but is
//     no longer live, including the losers of a concurrent rotation race.
func (s *Service) Refresh(ctx context.Context, tok string) (Issued, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		s.metrics.refreshResult("missing")
		return Issued{}, ErrUnauthenticated
	}

	now := s.now().UTC()

	claims, err := s.codec.VerifyRefresh(tok, now)
	if err != nil {
		s.metrics.refreshResult("invalid")
		s.log.InfoContext(ctx, "auth.refresh.fail", "reason", "verify")
		return Issued{}, ErrInvalidRefreshToken
	}

	u, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			s.metrics.refreshResult("invalid")
			s.log.InfoContext(ctx, "auth.refresh.fail", "reason", "unknown_principal", "user_id", claims.Subject)
			return Issued{}, ErrInvalidRefreshToken
		}
		return Issued{}, err
	}

	newRefresh, newRefreshExp, err := s.codec.IssueRefresh(u.ID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.Rotate(ctx, u.ID, tok, newRefresh, newRefreshExp, now); err != nil {
		if errors.Is(err, ErrRefreshNotLive) {
			s.metrics.refreshResult("replay")
			s.metrics.replaySuspected()
			s.log.WarnContext(ctx, "auth.refresh.replay_suspected",
				"user_id", u.ID,
				"jti", claims.ID,
			)
			return Issued{}, RefreshReplayError{PrincipalID: u.ID}
		}
		return Issued{}, err
	}

	access, accessExp, err := s.codec.IssueAccess(principalOf(u), now)
	if err != nil {
		return Issued{}, err
	}

	s.metrics.refreshResult("ok")
	s.log.DebugContext(ctx, "auth.refresh.ok", "user_id", u.ID)

	return Issued{
		User:         u,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: newRefresh,
		RefreshExp:   newRefreshExp,
	}, nil
}

// Logout removes the refresh token from its principal's set. It never fails: an empty,
// malformed, expired or already-removed token is a no-op.
func (s *Service) Logout(ctx context.Context, tok string) {
	s.metrics.loggedOut()

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return
	}

	claims, err := s.codec.VerifyRefresh(tok, s.now().UTC())
	if err != nil {
		s.log.DebugContext(ctx, "auth.logout.unverifiable")
		return
	}

	if err := s.store.Remove(ctx, claims.Subject, tok); err != nil {
		s.log.WarnContext(ctx, "auth.logout.store_error", "user_id", claims.Subject, "err", err)
		return
	}
	s.log.InfoContext(ctx, "auth.logout", "user_id", claims.Subject)
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(tok string) (AccessClaims, error) {
	return s.codec.VerifyAccess(tok, s.now().UTC())
}

// Me loads the principal identified by an authenticated access token.
func (s *Service) Me(ctx context.Context, principalID string) (identity.User, error) {
	return s.users.GetUserByID(ctx, principalID)
}

// issue prunes the principal's expired refresh entries, records a new refresh token and
// signs a matching access token.
func (s *Service) issue(ctx context.Context, u identity.User, reason string) (Issued, error) {
	now := s.now().UTC()

	access, accessExp, err := s.codec.IssueAccess(principalOf(u), now)
	if err != nil {
		return Issued{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(u.ID, now)
	if err != nil {
		return Issued{}, err
	}

	if n, err := s.store.Prune(ctx, u.ID, now); err != nil {
		return Issued{}, err
	} else if n > 0 {
		s.log.DebugContext(ctx, "auth.refresh.pruned", "user_id", u.ID, "count", n)
	}
	if err := s.store.Add(ctx, u.ID, refresh, refreshExp); err != nil {
		return Issued{}, err
	}

	s.metrics.sessionIssued(reason)
	s.log.InfoContext(ctx, "auth.session.issued", "user_id", u.ID, "reason", reason, "has_org", u.HasOrg())

	return Issued{
		User:         u,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func principalOf(u identity.User) Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: string(u.Role), OrgID: u.OrgID}
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "password too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "password too long"
	case errors.Is(err, password.ErrWeakPassword):
		return "weak password"
	default:
		return "invalid password"
	}
}
