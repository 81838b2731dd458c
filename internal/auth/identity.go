package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Identity returns a stable, non-reversible label for whoever p signs in as
// against realm (usually the API base URL). JWTs are labelled by subject so
// a refreshed token keeps the label; opaque tokens by the token itself.
func Identity(ctx context.Context, p TokenProvider, realm string) (string, error) {
	token, err := Acquire(ctx, p)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(realm))
	if parsed, err := jwt.ParseInsecure([]byte(token)); err == nil && parsed.Subject() != "" {
		h.Write([]byte("\x00sub\x00" + parsed.Subject()))
	} else {
		h.Write([]byte("\x00token\x00" + token))
	}
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}
