package venue

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// TOTPNow returns the current RFC 6238 one-time code for a base32
// secret, as the venue's login expects: 6 digits, 30-second steps,
// HMAC-SHA1.
func TOTPNow(secret string) (string, error) {
	return totpAt(secret, time.Now())
}

func totpAt(secret string, at time.Time) (string, error) {
	norm := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(norm, "="))
	if err != nil {
		return "", fmt.Errorf("venue: bad totp secret: %w", err)
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(at.Unix()/30))

	mac := hmac.New(sha1.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", code%1000000), nil
}
