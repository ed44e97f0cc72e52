package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewTokenService_RequiresSecret(t *testing.T) {
	if _, err := NewTokenService("", time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	svc, err := NewTokenService("s3cret", time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	tok, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	uid, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "user-1" {
		t.Fatalf("expected user-1, got %q", uid)
	}
}

func TestVerify_Expired(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Minute)
	issuedAt := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issuedAt }
	tok, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	a, _ := NewTokenService("secret-a", time.Hour)
	b, _ := NewTokenService("secret-b", time.Hour)

	tok, _ := a.Issue("user-1")
	if _, err := b.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Hour)
	tok, _ := svc.Issue("user-1")
	other, _ := svc.Issue("user-2")

	// splice user-2's payload onto user-1's signature
	a := strings.Split(tok, ".")
	b := strings.Split(other, ".")
	forged := a[0] + "." + b[1] + "." + a[2]
	if _, err := svc.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Hour)
	for _, tok := range []string{"", "abc", "a.b.c"} {
		if _, err := svc.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_RequiresSubject(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Hour)
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	if _, err := svc.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("pw1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "pw1" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "pw1") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "pw2") {
		t.Fatal("expected wrong password to fail")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
