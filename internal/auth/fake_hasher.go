package auth

import "strings"

const fakeHashPrefix = "$fake$"

// FakeInsecureHasher is a PasswordHasher that stores the password in the
// clear behind a marker prefix. Tests use it to skip argon2's cost; never
// wire it into a server.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return fakeHashPrefix + password, nil
}

func (FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	stored, ok := strings.CutPrefix(encodedHash, fakeHashPrefix)
	return ok && stored == password
}
