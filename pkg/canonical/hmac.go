package canonical

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var (
	// ErrInvalidSignature indicates signature verification failed
	ErrInvalidSignature = errors.New("invalid HMAC signature")
)

// SignHMAC returns the base64 HMAC-SHA256 of v's canonical JSON. Journal
// records carry it so that replay can detect tampered bodies.
func SignHMAC(v any, key []byte) (string, error) {
	payload, err := JSONBytes(v)
	if err != nil {
		return "", err
	}
	return SignBytes(payload, key), nil
}

// SignBytes is SignHMAC for an already canonical payload.
func SignBytes(payload, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyBytes checks a signature produced by SignBytes using a
// constant-time comparison.
func VerifyBytes(payload []byte, sigB64 string, key []byte) error {
	got, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}
	return nil
}
