package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Hasher is a one-way salted hash with a compare operation.  It backs both
// account passwords and refresh tokens at rest.
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

// BcryptHasher implements Hasher with bcrypt at a fixed cost.
type BcryptHasher struct{ Cost int }

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return HashPassword(plain, cost)
}

func (h BcryptHasher) Compare(hash, plain string) bool { return VerifyPassword(hash, plain) }

// RefreshDigest returns the hex SHA-256 of a raw refresh token.  Signed
// refresh tokens are far longer than the 72 bytes bcrypt accepts, so the
// digest is what gets salted and hashed.
func RefreshDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex string built from n bytes of crypto/rand data.
// Used for invite and password reset tokens.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
