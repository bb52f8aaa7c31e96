package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	PasswordLength = 12
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var ErrWeakPassword = errors.New("weak password")

func HashPassword(password string) (string, error) {
	if len(password) < PasswordLength {
		return "", fmt.Errorf("%w: must be at least %d characters long", ErrWeakPassword, PasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: must be at most %d bytes long", ErrWeakPassword, maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
