package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCronSecret = errors.New("invalid cron secret")

// CronVerifier checks the shared secret presented by scheduled callers.
type CronVerifier interface {
	Verify(secret string) error
	Enabled() bool
}

type cronVerifier struct {
	hash []byte
}

// NewCronVerifier takes the bcrypt hash of the secret. An empty hash rejects
// every caller, leaving the cron route to admins.
func NewCronVerifier(hash string) CronVerifier {
	return &cronVerifier{hash: []byte(hash)}
}

func (v *cronVerifier) Enabled() bool {
	return len(v.hash) > 0
}

func (v *cronVerifier) Verify(secret string) error {
	if !v.Enabled() || secret == "" {
		return ErrInvalidCronSecret
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(secret)); err != nil {
		return ErrInvalidCronSecret
	}
	return nil
}

// HashCronSecret produces the value stored in cron.secret_hash.
func HashCronSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
