package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// PasswordVerifier checks a plaintext password against a stored hash.
// It is an explicit strategy chosen once at startup: deployments with an
// external credential scheme supply their own implementation to the gateway
// constructor instead of the Argon2id default.
type PasswordVerifier interface {
	// Verify returns true when password matches the stored hash. A
	// malformed hash is an error, not a mismatch.
	Verify(password, hash string) (bool, error)
}

// PasswordHasher produces hashes accepted by the matching PasswordVerifier.
// Only used on the write side (first-boot admin seeding, user creation).
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// argon2idParams follows the OWASP minimum parameters.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2idVerifier is the default PasswordVerifier and PasswordHasher,
// storing hashes in PHC format ($argon2id$v=19$...).
type Argon2idVerifier struct{}

// Verify compares password against an Argon2id PHC hash. The underlying
// library panics on malformed hashes with invalid parameters; that panic is
// converted into an error so callers can treat it as a rejected credential.
func (Argon2idVerifier) Verify(password, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, hash)
}

// Hash returns the Argon2id PHC hash of password.
func (Argon2idVerifier) Hash(password string) (string, error) {
	return argon2id.CreateHash(password, argon2idParams)
}

var (
	_ PasswordVerifier = Argon2idVerifier{}
	_ PasswordHasher   = Argon2idVerifier{}
)
