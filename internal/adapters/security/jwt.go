package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/allumi/attribution-service/internal/ports"
)

// JWTVerifier validates RS256 service tokens presented by internal callers.
// Keys are held at adapter level so application layer stays crypto-library
// agnostic. The service only verifies; token signing lives with the identity
// platform that issues them.
type JWTVerifier struct {
	kid       string
	publicKey *rsa.PublicKey

	// signing key is only populated for the ephemeral dev verifier, which
	// mints its own tokens for local testing.
	privateKey *rsa.PrivateKey
}

// NewJWTVerifier builds a verifier from a configured PEM public key.
func NewJWTVerifier(kid, publicKeyPEM string) (*JWTVerifier, error) {
	if kid == "" {
		return nil, errors.New("jwt key id (kid) is required")
	}
	if publicKeyPEM == "" {
		return nil, errors.New("jwt public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTVerifier{kid: kid, publicKey: pub}, nil
}

// NewEphemeralJWTVerifier creates an in-memory keypair for local/dev use.
// This exists to unblock runtime startup when static keys are intentionally absent.
func NewEphemeralJWTVerifier(kid string) (*JWTVerifier, error) {
	if kid == "" {
		kid = "ephemeral-key-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{
		kid:        kid,
		publicKey:  &privateKey.PublicKey,
		privateKey: privateKey,
	}, nil
}

type serviceJWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(raw string) (ports.ServiceClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &serviceJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return ports.ServiceClaims{}, err
	}
	claims, ok := parsed.Claims.(*serviceJWTClaims)
	if !ok || !parsed.Valid {
		return ports.ServiceClaims{}, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return ports.ServiceClaims{}, errors.New("token subject is required")
	}

	out := ports.ServiceClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// Mint signs a short-lived token with the ephemeral keypair. Only available
// on the dev verifier; production deployments verify externally issued tokens.
func (v *JWTVerifier) Mint(subject, role string, ttl time.Duration) (string, error) {
	if v.privateKey == nil {
		return "", errors.New("verifier has no signing key")
	}
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, serviceJWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	token.Header["kid"] = v.kid
	return token.SignedString(v.privateKey)
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
