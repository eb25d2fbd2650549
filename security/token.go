package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid trigger token")

// VerifyTriggerToken checks a plaintext admin trigger token against the
// configured bcrypt hash. An empty hash disables the endpoint entirely.
func VerifyTriggerToken(hash, token string) error {
	if hash == "" || token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}
