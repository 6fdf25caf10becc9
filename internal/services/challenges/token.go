package challenges

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// newResumeToken returns a 32-char hex token from crypto/rand.
func newResumeToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	return hex.EncodeToString(b[:]), nil
}

// signToken computes the short signature embedded in magic links:
// HMAC-SHA256 over the token, hex-encoded, truncated to 16 bytes. The token
// itself is unguessable; the signature only rules out tokens minted outside
// this service.
func signToken(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}

func verifyToken(secret, token, sig string) bool {
	return hmac.Equal([]byte(signToken(secret, token)), []byte(sig))
}

func magicURL(baseURL, secret, token string) string {
	return fmt.Sprintf("%s/r/%s?sig=%s", baseURL, token, signToken(secret, token))
}
