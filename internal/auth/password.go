package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest password Register accepts.
	MinPasswordLength = 6
	// maxPasswordBytes is the bcrypt input limit.
	maxPasswordBytes = 72
)

// PasswordCost is the bcrypt cost used for new hashes.
var PasswordCost = bcrypt.DefaultCost

// HashPassword validates the password length and returns its bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength || len(password) > maxPasswordBytes {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks password against a stored hash. A mismatch is
// reported as ErrInvalidCredentials.
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return err
}

