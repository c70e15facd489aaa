package auth

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestHashToken_consistency(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	if h1 != h2 {
		t.Errorf("hash should be deterministic: %q != %q", h1, h2)
	}
	decoded, err := hex.DecodeString(h1)
	if err != nil {
		t.Fatalf("hash should be valid hex: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("SHA-256 hash should be 32 bytes, got %d", len(decoded))
	}
}

func TestGenerateToken_shape(t *testing.T) {
	token, hash, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(token) != 43 {
		t.Errorf("token should be 43 base64url chars, got %d", len(token))
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token should be base64url: %v", err)
	}
	if len(raw) != tokenBytes {
		t.Errorf("token should carry %d bytes, got %d", tokenBytes, len(raw))
	}
	if hash != HashToken(token) {
		t.Error("returned hash should match HashToken(token)")
	}
	if hash == token {
		t.Error("hash must not equal the plaintext token")
	}
}

func TestGenerateToken_unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, _, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[token] = true
	}
}
