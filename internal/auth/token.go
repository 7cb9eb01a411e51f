// Package auth signs the device cookie that scopes access grants and checks
// the producer admin token.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeviceClaims identify one visitor device. Sub is the device id.
type DeviceClaims struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueDeviceToken(secret []byte, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	return IssueToken(secret, DeviceClaims{
		Sub: deviceID,
		Iat: now.Unix(),
		Exp: now.Add(ttl).Unix(),
	})
}

func IssueToken(secret []byte, claims DeviceClaims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

func ParseToken(secret []byte, token string) (DeviceClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return DeviceClaims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return DeviceClaims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return DeviceClaims{}, ErrInvalidToken
	}

	var claims DeviceClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return DeviceClaims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.Exp == 0 {
		return DeviceClaims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return DeviceClaims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
