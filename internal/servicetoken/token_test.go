package servicetoken

import (
	"net/http"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner("shared-secret", "account-service", "catalog", time.Minute)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	verifier, err := NewVerifier("shared-secret", "catalog", []string{"account-service"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "account-service" {
		t.Fatalf("unexpected issuer: %q", claims.Issuer)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, _ := NewSigner("secret-a", "account-service", "catalog", time.Minute)
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewVerifier("secret-b", "catalog", []string{"account-service"})
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	signer, _ := NewSigner("shared-secret", "account-service", "someone-else", time.Minute)
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewVerifier("shared-secret", "catalog", []string{"account-service"})
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for wrong audience")
	}
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	signer, _ := NewSigner("shared-secret", "rogue-service", "catalog", time.Minute)
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewVerifier("shared-secret", "catalog", []string{"account-service"})
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for unknown issuer")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer, _ := NewSigner("shared-secret", "account-service", "catalog", time.Nanosecond)
	token, err := signer.Token()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewVerifier("shared-secret", "catalog", []string{"account-service"})
	verifier.leeway = 0
	time.Sleep(10 * time.Millisecond)
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for expired token")
	}
}

func TestBearerToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected missing token")
	}
	r.Header.Set("Authorization", "Bearer abc123")
	token, ok := BearerToken(r)
	if !ok || token != "abc123" {
		t.Fatalf("unexpected token %q ok=%v", token, ok)
	}
	r.Header.Set("Authorization", "Bearer   ")
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected empty token rejected")
	}
}
