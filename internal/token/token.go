// Package token signs and verifies the render tokens embedded in impression,
// click and conversion URLs. A valid token proves the event refers to an ad
// this server actually delivered to this viewer, so counters cannot be
// inflated by hand-built requests.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Payload carries the delivery identity a render token binds together.
type Payload struct {
	AdID      int    `json:"a"`
	ViewerKey string `json:"v"`
	Page      string `json:"p"`
	Location  string `json:"l"`
	Variant   string `json:"vn,omitempty"`
	TS        int64  `json:"t"`
}

// Generate creates a signed token for the given delivery.
func Generate(pl Payload, secret []byte) (string, error) {
	if pl.TS == 0 {
		pl.TS = time.Now().Unix()
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns the payload.
func Verify(tok string, secret []byte, ttl time.Duration) (Payload, error) {
	var pl Payload
	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return pl, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return pl, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return pl, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return pl, ErrInvalid
	}

	if err := json.Unmarshal(data, &pl); err != nil {
		return pl, ErrInvalid
	}
	if ttl > 0 && time.Since(time.Unix(pl.TS, 0)) > ttl {
		return pl, ErrExpired
	}
	return pl, nil
}
