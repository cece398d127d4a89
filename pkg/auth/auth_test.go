package auth

import "testing"

func TestHashPassword_BootstrapVector(t *testing.T) {
	got := HashPassword(BootstrapAdminPassword, BootstrapAdminSalt)
	want := "81d40d94fee4fb4eeb1a21bb7adb93c06aad35b929c1a2b024ae33b3a9b79e23"
	if got != want {
		t.Errorf("HashPassword(%q, %q) = %q, want %q", BootstrapAdminPassword, BootstrapAdminSalt, got, want)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash := HashPassword("hunter2", "pepper")
	if !VerifyPassword("hunter2", "pepper", hash) {
		t.Error("expected matching password to verify")
	}
	if VerifyPassword("wrong", "pepper", hash) {
		t.Error("expected mismatched password to fail verification")
	}
}

func TestGenerateToken(t *testing.T) {
	t1, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	t2, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 {
		t.Error("expected distinct tokens")
	}
	if len(t1) <= len(TokenPrefix) {
		t.Error("expected token to carry random suffix")
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	tok := "reg_abc123"
	if HashToken(tok) != HashToken(tok) {
		t.Error("expected HashToken to be deterministic")
	}
}
