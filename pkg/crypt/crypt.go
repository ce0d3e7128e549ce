// Package crypt seals backups with a password.
//
// The format is the one the UI has always written for exported backups:
//
//	key    = PBKDF2-SHA256(password, "simple-pos-salt", 100000 iterations, 32 bytes)
//	sealed = base64(iv[12] || AES-256-GCM(key, iv, plaintext))
//
// so a backup sealed by the shell opens in the UI and the other way round.
//
//	sealed, err := crypt.Seal(snapshot, password)
//	plain, err := crypt.Open(sealed, password)
//
//	// JSON helpers
//	sealed, _ := crypt.SealJSON(map[string]any{"orders": orders}, password)
//	var out map[string]any
//	crypt.OpenJSON(sealed, password, &out)
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Salt is fixed so that a password alone opens a backup on any terminal.
	Salt       = "simple-pos-salt"
	Iterations = 100_000
	KeySize    = 32
	NonceSize  = 12
)

var (
	// ErrDecrypt is returned when decryption or authentication fails:
	// wrong password or a corrupted backup.
	ErrDecrypt = errors.New("crypt: invalid password or corrupted data")
	// ErrNoPassword is returned when the password is empty.
	ErrNoPassword = errors.New("crypt: password required")
)

// DeriveKey returns the AES-256 key for password.
func DeriveKey(password string) []byte {
	return pbkdf2.Key([]byte(password), []byte(Salt), Iterations, KeySize, sha256.New)
}

func newGCM(password string) (cipher.AEAD, error) {
	if password == "" {
		return nil, ErrNoPassword
	}
	block, err := aes.NewCipher(DeriveKey(password))
	if err != nil {
		return nil, fmt.Errorf("crypt: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypt: new GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with password and returns the base64 string.
func Seal(plaintext []byte, password string) (string, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypt: nonce: %w", err)
	}

	// Seal appends ciphertext+tag after nonce.
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func Open(sealed string, password string) ([]byte, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < NonceSize+gcm.Overhead() {
		return nil, ErrDecrypt
	}

	plain, err := gcm.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// SealJSON marshals v to JSON and seals it.
func SealJSON(v any, password string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("crypt: marshal: %w", err)
	}
	return Seal(b, password)
}

// OpenJSON opens sealed and unmarshals the JSON into dst.
func OpenJSON(sealed, password string, dst any) error {
	b, err := Open(sealed, password)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
