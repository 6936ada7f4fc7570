package user

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/pkg/errors"
)

// sessionTokenSize is the number of random bytes in a session token (64 hex chars).
const sessionTokenSize = 32

var (
	randReader = rand.Reader // mockable
	nowFunc    = time.Now    // mockable
)

// IssueToken mints a new opaque session token from a cryptographically secure source.
func IssueToken() (string, error) {
	raw := make([]byte, sessionTokenSize)
	if _, err := io.ReadFull(randReader, raw); err != nil {
		return "", errors.Wrap(err, "generating session token")
	}
	return hex.EncodeToString(raw), nil
}

// digestToken is what gets persisted for a session token; the token itself never hits the store.
func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// validTokenFormat rejects anything that IssueToken could not have produced, before touching the store.
func validTokenFormat(token string) bool {
	if len(token) != sessionTokenSize*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// sessionNeedsRefresh reports whether a sliding session should have its expiry pushed forward:
// once less than half of its lifetime remains.
func sessionNeedsRefresh(expiresAt time.Time, lifetime time.Duration, now time.Time) bool {
	return expiresAt.Sub(now) < lifetime/2
}
