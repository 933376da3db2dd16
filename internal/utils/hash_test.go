package utils

import "testing"

func TestGenerateRandomToken(t *testing.T) {
	a, err := GenerateRandomToken(48)
	if err != nil {
		t.Fatalf("GenerateRandomToken: %v", err)
	}
	b, err := GenerateRandomToken(48)
	if err != nil {
		t.Fatalf("GenerateRandomToken: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	// 48 bytes in unpadded base64url.
	if len(a) != 64 {
		t.Fatalf("token length = %d, want 64", len(a))
	}
}

func TestTokenMatchesHash(t *testing.T) {
	stored := HashToken("token-a")
	if !TokenMatchesHash("token-a", &stored) {
		t.Fatal("expected match")
	}
	if TokenMatchesHash("token-b", &stored) {
		t.Fatal("expected mismatch")
	}
	if TokenMatchesHash("token-a", nil) {
		t.Fatal("nil hash must never match")
	}
	if TokenMatchesHash("", &stored) {
		t.Fatal("empty token must never match")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ana@Clinica.COM "); got != "ana@clinica.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
