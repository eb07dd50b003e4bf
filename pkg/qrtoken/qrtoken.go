package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Signer creates and validates scannable check-in tokens for approved
// in-person reservations. The token is opaque to consumers; the counseling
// room scanner posts it back for validation.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token bound to the reservation ID.
func (s *Signer) Generate(reservationID string) (string, time.Time, error) {
	if reservationID == "" {
		return "", time.Time{}, fmt.Errorf("reservationID required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	payload := fmt.Sprintf("%s|%d", reservationID, expiresAt.Unix())
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{reservationID, fmt.Sprintf("%d", expiresAt.Unix()), signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded reservation ID.
func (s *Signer) Parse(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid token format")
	}
	reservationID := parts[0]
	ts := parts[1]
	signature := parts[2]

	var expUnix int64
	if _, err := fmt.Sscanf(ts, "%d", &expUnix); err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt := time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s", reservationID, ts)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if time.Now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("token expired")
	}
	return reservationID, expiresAt, nil
}
