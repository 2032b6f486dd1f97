package app

import (
	"errors"

	"predixa/cmd/security/token"
)

// ValidateSecurityConfig enforces the refresh-token digest policy at startup.
// Under PREDIXA_REQUIRE_TOKEN_HMAC a missing or short key is fatal; there is no SHA fallback.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: PREDIXA_REQUIRE_TOKEN_HMAC=true but PREDIXA_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: PREDIXA_REQUIRE_TOKEN_HMAC=true but PREDIXA_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: PREDIXA_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
