// Package auth verifies the HMAC-signed session tokens minted by the
// platform's identity gateway. Trellis never issues tokens in production;
// IssueToken exists for tests and local tooling.
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

// Claims is the payload carried by a session token. Role is free-form here;
// the rbac package degrades unknown values to the least-privileged role.
type Claims struct {
	Sub  string `json:"sub"`  // platform user ID
	Name string `json:"name"` // display name, doubles as the commit author
	Role string `json:"role"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"` // unix seconds
}

// Both map to 401 at the HTTP layer; the split only matters for logs.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs claims into the gateway's two-part form: base64url JSON,
// a dot, then a base64url HMAC-SHA256 over the encoded payload.
func IssueToken(secret []byte, claims Claims) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	return payload + "." + signPayload(secret, payload), nil
}

// ParseToken checks the signature before trusting anything in the payload,
// then rejects structurally incomplete or expired claims.
func ParseToken(secret []byte, token string) (Claims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signPayload(secret, payload)), []byte(signature)) {
		return Claims{}, ErrInvalidToken
	}

	body, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if err := claims.validate(time.Now()); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c Claims) validate(now time.Time) error {
	if c.Sub == "" || c.Name == "" || c.JTI == "" || c.Exp == 0 {
		return ErrInvalidToken
	}
	if now.Unix() >= c.Exp {
		return ErrExpiredToken
	}
	return nil
}

func signPayload(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
