package identity

import (
	"errors"

	"predixa/cmd/security/password"
)

// HashPassword hashes plain with cfg and maps policy failures to ErrInvalidInput.
// The returned string is a PHC-style argon2id encoding.
func HashPassword(cfg password.Config, plain string) (string, error) {
	const op = "identity.HashPassword"

	enc, err := cfg.Hash(plain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", invalid(op, "password too short")
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", invalid(op, "password too long")
		case errors.Is(err, password.ErrWeakPassword):
			return "", invalid(op, "weak password")
		default:
			return "", err
		}
	}
	return enc, nil
}

// VerifyPassword checks plain against a stored argon2id hash.
// A malformed stored hash is reported as a mismatch with an error, never as a match.
func VerifyPassword(cfg password.Config, plain, encoded string) (bool, error) {
	ok, err := cfg.Verify(encoded, plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return false, errors.New("invalid argon2id hash format")
		}
		return false, err
	}
	return ok, nil
}
