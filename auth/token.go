package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenTTL is the validity window of an admin session token.
const TokenTTL = 24 * time.Hour

// ErrSigningDisabled is returned by Issue when no operator secret is configured.
var ErrSigningDisabled = errors.New("auth secret not configured")

// Claims is the admin session payload.
type Claims struct {
	Authenticated bool  `json:"authenticated"`
	Timestamp     int64 `json:"timestamp"` // issue time, unix ms
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens from one shared secret.
type TokenService struct {
	secret  []byte
	canSign bool
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenService builds a service verifying with secret. canSign must be false
// when secret is only the weak fallback, so the login path fails closed.
func NewTokenService(secret string, canSign bool) *TokenService {
	return &TokenService{
		secret:  []byte(secret),
		canSign: canSign && secret != "",
		ttl:     TokenTTL,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// TTL returns the token validity window.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// CanSign reports whether Issue will succeed.
func (s *TokenService) CanSign() bool { return s.canSign }

// Issue signs a new token asserting {authenticated: true, issuedAt: now}.
func (s *TokenService) Issue() (string, error) {
	if !s.canSign {
		return "", ErrSigningDisabled
	}
	now := s.now()
	claims := &Claims{
		Authenticated: true,
		Timestamp:     now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the claims if and only if the signature validates and the
// token has not expired. Invalid input is an expected outcome, not a fault.
func (s *TokenService) Verify(raw string) (*Claims, bool) {
	if raw == "" || len(s.secret) == 0 {
		return nil, false
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	// Expiry is checked against our clock rather than jwt.TimeFunc.
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, false
	}
	return &claims, true
}
