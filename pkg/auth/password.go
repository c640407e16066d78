package auth

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is the shortest password accepted anywhere a password is
// set.
const MinPasswordLength = 6

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// HashPassword returns a bcrypt hash of the plain-text password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash against the plain-text candidate.
// An empty hash never matches.
func CheckPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
