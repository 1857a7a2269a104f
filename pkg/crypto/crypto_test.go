package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}
	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("JBSWY3DPEHPK3PXP")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}

	if _, err := Decrypt(encoded, bytes.Repeat([]byte{0x2}, 32)); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	first, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("api key error: %v", err)
	}
	if len(first) != APIKeyBytes*2 {
		t.Fatalf("expected %d hex chars, got %d", APIKeyBytes*2, len(first))
	}
	if _, err := hex.DecodeString(first); err != nil {
		t.Fatalf("expected hex encoded key: %v", err)
	}

	second, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("api key error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct api keys")
	}
}
