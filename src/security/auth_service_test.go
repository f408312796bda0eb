package security_test

import (
	"testing"
	"time"

	"github.com/username/collectr/backend/src/security"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	svc := security.NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)

	hashed, err := svc.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hashed == "hunter22" {
		t.Fatal("expected hashed password to differ from plaintext")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := security.NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)

	token, err := svc.GenerateToken("42")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	subject, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if subject != "42" {
		t.Errorf("expected subject 42, got %q", subject)
	}
}

func TestValidateToken_WrongSecretRejected(t *testing.T) {
	issuer := security.NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)
	verifier := security.NewAuthService("ffffffffffffffffffffffffffffffff", time.Hour)

	token, err := issuer.GenerateToken("42")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("expected validation to fail with a different secret")
	}
}

func TestValidateToken_ExpiredRejected(t *testing.T) {
	svc := security.NewAuthService("0123456789abcdef0123456789abcdef", -time.Minute)

	token, err := svc.GenerateToken("42")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected validation to fail for an expired token")
	}
}

func TestValidateToken_GarbageRejected(t *testing.T) {
	svc := security.NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)
	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Error("expected validation to fail for malformed input")
	}
}
