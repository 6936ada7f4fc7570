package user

import "golang.org/x/crypto/bcrypt"

var passwordCost = bcrypt.DefaultCost

// HashPassword returns a salted bcrypt hash of pwd.
// Hashing the same password twice yields two different hashes.
func HashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), passwordCost)
}

// VerifyPassword reports whether pwd matches hash.
// The comparison is bcrypt's constant-time one; an empty or malformed hash never matches.
func VerifyPassword(pwd string, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pwd)) == nil
}
