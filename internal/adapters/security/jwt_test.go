package security

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func TestEphemeralMintAndVerify(t *testing.T) {
	t.Parallel()

	verifier, err := NewEphemeralJWTVerifier("")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := verifier.Mint("billing-service", "internal", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "billing-service" || claims.Role != "internal" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt.Before(time.Now().UTC()) {
		t.Fatalf("token already expired: %v", claims.ExpiresAt)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	verifier, err := NewEphemeralJWTVerifier("test-key")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify("not.a.jwt"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	issuer, err := NewEphemeralJWTVerifier("issuer")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	other, err := NewEphemeralJWTVerifier("other")
	if err != nil {
		t.Fatalf("other: %v", err)
	}
	token, err := issuer.Mint("billing-service", "internal", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("token from a different keypair must not verify")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	verifier, err := NewEphemeralJWTVerifier("test-key")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	// Leeway is 30s; expire well past it.
	token, err := verifier.Mint("billing-service", "internal", -2*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expired token must not verify")
	}
}

func TestConfiguredVerifierIsVerifyOnly(t *testing.T) {
	t.Parallel()

	issuer, err := NewEphemeralJWTVerifier("key-1")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(issuer.publicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	verifier, err := NewJWTVerifier("key-1", publicPEM)
	if err != nil {
		t.Fatalf("new verifier from PEM: %v", err)
	}

	token, err := issuer.Mint("billing-service", "internal", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verifier.Verify(token); err != nil {
		t.Fatalf("PEM-configured verifier rejected valid token: %v", err)
	}
	if _, err := verifier.Mint("billing-service", "internal", time.Minute); err == nil {
		t.Fatalf("verify-only verifier must not mint")
	}
}
