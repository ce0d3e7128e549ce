// Package auth guards the bridge and hashes staff PINs.
//
// Bridge tokens are HS256 JWTs signed with BRIDGE_SECRET. The webview gets
// one at startup (simplepos token, or injected by the launcher) and sends it
// as "Authorization: Bearer <token>" or, for the /events websocket, as
// "?token=<token>".
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simplepos/shell/config"
)

// Issuer is the iss claim of every bridge token.
const Issuer = "simplepos-shell"

var (
	ErrNoSecret     = errors.New("auth: bridge secret is not configured")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims holds the typed JWT payload. Client names the webview or tool the
// token was issued to.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Signer issues and checks tokens for one secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer. ttl <= 0 issues tokens without expiry.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// FromConfig returns a Signer for BRIDGE_SECRET and BRIDGE_TOKEN_TTL.
func FromConfig() *Signer {
	return NewSigner(config.BridgeSecret(), config.BridgeTokenTTL())
}

// Enabled reports whether a secret is set.
func (s *Signer) Enabled() bool { return len(s.secret) > 0 }

// GenerateToken creates a signed token for client.
func (s *Signer) GenerateToken(client string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  client,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken parses and validates a token string.
func (s *Signer) ValidateToken(t string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(t, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken issues a token with the configured secret.
func GenerateToken(client string) (string, error) { return FromConfig().GenerateToken(client) }

// ValidateToken checks t against the configured secret.
func ValidateToken(t string) (*Claims, error) { return FromConfig().ValidateToken(t) }

type ctxKey struct{}

// WithClaims stores c in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFrom returns the claims of the authenticated request, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}
