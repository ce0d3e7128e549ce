package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("s3cret", time.Hour)
	tok, err := s.GenerateToken("webview")
	require.NoError(t, err)

	claims, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "webview", claims.Client)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestSigner_Rejects(t *testing.T) {
	s := NewSigner("s3cret", time.Hour)
	tok, err := s.GenerateToken("webview")
	require.NoError(t, err)

	_, err = NewSigner("other", time.Hour).ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Wrong algorithm.
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewSigner("s3cret", 0).ValidateToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_Disabled(t *testing.T) {
	s := NewSigner("", time.Hour)
	assert.False(t, s.Enabled())
	_, err := s.GenerateToken("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFrom(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Client: "cli"})
	c, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "cli", c.Client)
}

func TestPin(t *testing.T) {
	hash, err := HashPin("1234")
	require.NoError(t, err)
	assert.True(t, CheckPin(hash, "1234"))
	assert.False(t, CheckPin(hash, "4321"))

	_, err = HashPin("")
	assert.ErrorIs(t, err, ErrEmptyPin)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PinCost, cost)
}

func TestPinCommands(t *testing.T) {
	ctx := context.Background()
	out, err := HashPinCommand()(ctx, json.RawMessage(`{"pin":"0000"}`))
	require.NoError(t, err)
	hash := out.(string)

	args, _ := json.Marshal(map[string]string{"pin": "0000", "hash": hash})
	ok, err := VerifyPinCommand()(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	args, _ = json.Marshal(map[string]string{"pin": "1111", "hash": hash})
	ok, err = VerifyPinCommand()(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, false, ok)
}
