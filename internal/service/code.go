package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// FallbackCode derives the 6-digit human-typable code for a token. The
// derivation is an HMAC keyed with the server token secret and the session
// id, truncated to six decimal digits the way RFC 4226 truncates an HOTP
// value. Deterministic per token; re-derived on every rotation. This is a
// convenience fallback with far less entropy than the token itself and is
// never a security boundary.
func FallbackCode(secret []byte, sessionID, token string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write([]byte(token))
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", value%1000000)
}

// ChecksumCode is the legacy derivation: the byte sum of the token reduced
// modulo 10^6. Kept for verifying codes issued by older deployments; new
// sessions use FallbackCode.
func ChecksumCode(token string) string {
	var sum int
	for _, b := range []byte(token) {
		sum += int(b)
	}
	return fmt.Sprintf("%06d", sum%1000000)
}
