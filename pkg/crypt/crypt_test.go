package crypt_test

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/crypt"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	plain := []byte("SQLite format 3\x00 …snapshot bytes…")

	sealed, err := crypt.Seal(plain, "correct horse")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	assert.Len(t, raw, crypt.NonceSize+len(plain)+16)

	got, err := crypt.Open(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	again, err := crypt.Seal(plain, "correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")
}

func TestOpen_Failures(t *testing.T) {
	sealed, err := crypt.Seal([]byte("data"), "pw")
	require.NoError(t, err)

	_, err = crypt.Open(sealed, "wrong")
	assert.ErrorIs(t, err, crypt.ErrDecrypt)

	_, err = crypt.Open("not base64 !!", "pw")
	assert.ErrorIs(t, err, crypt.ErrDecrypt)

	_, err = crypt.Open(base64.StdEncoding.EncodeToString([]byte("short")), "pw")
	assert.ErrorIs(t, err, crypt.ErrDecrypt)

	_, err = crypt.Open(sealed, "")
	assert.ErrorIs(t, err, crypt.ErrNoPassword)
}

// The layout must match what the UI's WebCrypto code produces: the first
// 12 bytes are the IV and the rest is GCM output under the PBKDF2 key.
func TestSeal_Layout(t *testing.T) {
	sealed, err := crypt.Seal([]byte(`{"orders":[]}`), "pw")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	block, err := aes.NewCipher(crypt.DeriveKey("pw"))
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	plain, err := gcm.Open(nil, raw[:12], raw[12:], nil)
	require.NoError(t, err)
	assert.Equal(t, `{"orders":[]}`, string(plain))
	assert.Len(t, crypt.DeriveKey("pw"), 32)
}

func TestSealJSON(t *testing.T) {
	in := map[string]any{"version": "1.0", "orders": []any{"A-1"}}
	sealed, err := crypt.SealJSON(in, "pw")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, crypt.OpenJSON(sealed, "pw", &out))
	assert.Equal(t, "1.0", out["version"])
	assert.Equal(t, []any{"A-1"}, out["orders"])
}
