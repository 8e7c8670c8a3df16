package ports

import "time"

// ServiceClaims are the verified claims of a caller's service token.
type ServiceClaims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier validates bearer tokens presented by internal callers on
// mutating and admin endpoints.
type TokenVerifier interface {
	Verify(token string) (ServiceClaims, error)
}
