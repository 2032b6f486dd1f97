package session

import (
	"errors"
	"strings"
	"time"

	"predixa/cmd/identity/ids"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// Principal is the identity embedded in an access token.
type Principal struct {
	ID    string
	Email string
	Role  string
	OrgID string
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID string `json:"org_id,omitempty"`
	Use   string `json:"typ"`
}

// Principal returns the identity carried by the claims.
func (c AccessClaims) Principal() Principal {
	return Principal{ID: c.Subject, Email: c.Email, Role: c.Role, OrgID: c.OrgID}
}

// RefreshClaims is the payload of a refresh token. ID (jti) makes every issued
// refresh token distinct even within the same second.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Use string `json:"typ"`
}

// Codec issues and verifies the two token kinds. Each kind has its own secret; a token
// signed with one secret never verifies as the other kind.
type Codec struct {
	issuer     string
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		issuer:     cfg.Issuer,
		accessKey:  append([]byte(nil), cfg.AccessSecret...),
		refreshKey: append([]byte(nil), cfg.RefreshSecret...),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		skew:       cfg.ClockSkew,
	}, nil
}

// IssueAccess signs an access token for p valid from now for the access TTL.
func (c *Codec) IssueAccess(p Principal, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, errors.New("session: empty principal id")
	}
	now = now.UTC()
	exp := now.Add(c.accessTTL)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: p.Email,
		Role:  p.Role,
		OrgID: p.OrgID,
		Use:   tokenUseAccess,
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// IssueRefresh signs a refresh token for principalID valid from now for the refresh TTL.
func (c *Codec) IssueRefresh(principalID string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", time.Time{}, errors.New("session: empty principal id")
	}
	now = now.UTC()
	exp := now.Add(c.refreshTTL)

	jti, err := ids.NewULID(now)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principalID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Use: tokenUseRefresh,
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// VerifyAccess checks signature, algorithm, issuer, expiry and token kind.
// Every failure collapses to ErrInvalidToken.
func (c *Codec) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims, c.accessKey, now); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.Use != tokenUseAccess || strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh is VerifyAccess for refresh tokens. It does not consult the store.
func (c *Codec) VerifyRefresh(token string, now time.Time) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims, c.refreshKey, now); err != nil {
		return RefreshClaims{}, ErrInvalidToken
	}
	if claims.Use != tokenUseRefresh || strings.TrimSpace(claims.Subject) == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	// Every refresh token this codec issues carries a ULID jti.
	if !ids.Valid(claims.ID) {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) parse(token string, claims jwt.Claims, key []byte, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now()
	}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	return err
}
