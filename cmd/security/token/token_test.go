package token

import "testing"

func TestHashRefreshTokenHex_SHAFallback(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	got := HashRefreshTokenHex("refresh-abc")
	if got != HashSHA256Hex("refresh-abc") {
		t.Fatalf("expected sha256 digest without key")
	}
	if len(got) != digestLen {
		t.Fatalf("digest len=%d want=%d", len(got), digestLen)
	}
}

func TestHashRefreshTokenHex_HMACMode(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	t.Setenv(HMACEnvKey, key)

	got := HashRefreshTokenHex("refresh-abc")
	if got != HashHMACSHA256Hex("refresh-abc", []byte(key)) {
		t.Fatalf("expected hmac digest with key set")
	}
	if got == HashSHA256Hex("refresh-abc") {
		t.Fatalf("hmac digest must differ from plain sha256")
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "  0123456789abcdef0123456789abcdef  ")
	k, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("HMACKeyFromEnv: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected trimmed key, got len=%d", len(k))
	}
	if !HMACEnabled() {
		t.Fatalf("expected HMACEnabled")
	}
}
