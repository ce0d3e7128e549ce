package updater

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrBadPublicKey = errors.New("updater: malformed public key")
	ErrBadSignature = errors.New("updater: malformed signature")
	ErrKeyMismatch  = errors.New("updater: signature was made with a different key")
	ErrVerify       = errors.New("updater: signature verification failed")
)

const (
	algLegacy   = "Ed" // signature over the raw file
	algPrehash  = "ED" // signature over BLAKE2b-512 of the file
	keyIDLength = 8
)

// PublicKey is a minisign public key.
type PublicKey struct {
	KeyID [keyIDLength]byte
	Key   ed25519.PublicKey
}

// Signature is a parsed minisign signature file.
type Signature struct {
	Algorithm      string
	KeyID          [keyIDLength]byte
	Sig            []byte
	TrustedComment string
	GlobalSig      []byte
}

// decodeBox accepts either the minisign text itself or the base64 of that
// text, which is how release manifests and the updater config carry it.
func decodeBox(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "untrusted comment:") {
		return s
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return strings.TrimSpace(string(raw))
	}
	return s
}

// ParsePublicKey parses a minisign public key. The untrusted comment line
// is optional.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	lines := strings.Split(decodeBox(s), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])

	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil || len(raw) != 2+keyIDLength+ed25519.PublicKeySize {
		return pk, ErrBadPublicKey
	}
	if string(raw[:2]) != algLegacy {
		return pk, fmt.Errorf("%w: algorithm %q", ErrBadPublicKey, raw[:2])
	}
	copy(pk.KeyID[:], raw[2:2+keyIDLength])
	pk.Key = ed25519.PublicKey(raw[2+keyIDLength:])
	return pk, nil
}

// ParseSignature parses a four-line minisign signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	lines := strings.Split(strings.ReplaceAll(decodeBox(s), "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return sig, ErrBadSignature
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil || len(raw) != 2+keyIDLength+ed25519.SignatureSize {
		return sig, ErrBadSignature
	}
	sig.Algorithm = string(raw[:2])
	if sig.Algorithm != algLegacy && sig.Algorithm != algPrehash {
		return sig, fmt.Errorf("%w: algorithm %q", ErrBadSignature, sig.Algorithm)
	}
	copy(sig.KeyID[:], raw[2:2+keyIDLength])
	sig.Sig = raw[2+keyIDLength:]

	comment, ok := strings.CutPrefix(lines[2], "trusted comment: ")
	if !ok {
		return sig, fmt.Errorf("%w: missing trusted comment", ErrBadSignature)
	}
	sig.TrustedComment = comment

	global, err := base64.StdEncoding.DecodeString(strings.TrimSpace(lines[3]))
	if err != nil || len(global) != ed25519.SignatureSize {
		return sig, fmt.Errorf("%w: global signature", ErrBadSignature)
	}
	sig.GlobalSig = global
	return sig, nil
}

// Verify checks data against sig and the trusted comment against the
// global signature.
func (pk PublicKey) Verify(data []byte, sig Signature) error {
	if !bytes.Equal(pk.KeyID[:], sig.KeyID[:]) {
		return ErrKeyMismatch
	}

	msg := data
	if sig.Algorithm == algPrehash {
		sum := blake2b.Sum512(data)
		msg = sum[:]
	}
	if !ed25519.Verify(pk.Key, msg, sig.Sig) {
		return ErrVerify
	}

	global := append(append([]byte{}, sig.Sig...), sig.TrustedComment...)
	if !ed25519.Verify(pk.Key, global, sig.GlobalSig) {
		return fmt.Errorf("%w: trusted comment", ErrVerify)
	}
	return nil
}
