// Package crypto verifies signatures on inbound provider notifications.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const sha256Prefix = "sha256="

var (
	ErrNoSecret         = errors.New("signing secret not configured")
	ErrMissingSignature = errors.New("signature missing")
	ErrSignatureInvalid = errors.New("signature mismatch")
	ErrTimestampInvalid = errors.New("signature timestamp invalid")
	ErrTimestampExpired = errors.New("signature timestamp outside tolerance")
)

// CalculateSignature returns the hex HMAC-SHA256 of message under secret
func CalculateSignature(secret string, message []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

// SignedMessage is the byte string a timestamped signature covers: "<timestamp>.<payload>".
// Without a timestamp the payload is signed as is.
func SignedMessage(timestamp string, payload []byte) []byte {
	if timestamp == "" {
		return payload
	}
	msg := make([]byte, 0, len(timestamp)+1+len(payload))
	msg = append(msg, timestamp...)
	msg = append(msg, '.')
	return append(msg, payload...)
}

// ValidateSignature checks a hex signature, with or without the "sha256=" prefix,
// in constant time. An empty secret never validates.
func ValidateSignature(secret string, message []byte, signature string) error {
	if secret == "" {
		return ErrNoSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, sha256Prefix)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// CheckTimestamp parses a unix-seconds timestamp and rejects it when it is
// further than tolerance from now. A zero tolerance accepts any valid timestamp.
func CheckTimestamp(timestamp string, now time.Time, tolerance time.Duration) error {
	secs, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrTimestampInvalid
	}
	if tolerance <= 0 {
		return nil
	}
	diff := now.Sub(time.Unix(secs, 0))
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return ErrTimestampExpired
	}
	return nil
}
