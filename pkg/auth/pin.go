package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/simplepos/shell/pkg/ipc"
)

// PinCost matches the cost the UI has always hashed PINs with, so existing
// user rows keep verifying.
const PinCost = 10

var ErrEmptyPin = errors.New("auth: empty PIN")

// HashPin returns a bcrypt hash of pin.
func HashPin(pin string) (string, error) {
	if pin == "" {
		return "", ErrEmptyPin
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), PinCost)
	return string(b), err
}

// CheckPin compares a bcrypt hash against the candidate pin. Hashes written
// by bcryptjs ($2a$/$2b$) are accepted.
func CheckPin(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

type hashPinArgs struct {
	Pin string `json:"pin"`
}

type verifyPinArgs struct {
	Pin  string `json:"pin"`
	Hash string `json:"hash"`
}

// HashPinCommand is the hash_pin command. bcrypt is slow on purpose, so
// doing it natively keeps the webview responsive.
func HashPinCommand() ipc.Handler {
	return ipc.Typed(func(_ context.Context, a hashPinArgs) (any, error) {
		return HashPin(a.Pin)
	})
}

// VerifyPinCommand is the verify_pin command.
func VerifyPinCommand() ipc.Handler {
	return ipc.Typed(func(_ context.Context, a verifyPinArgs) (any, error) {
		return CheckPin(a.Hash, a.Pin), nil
	})
}
