package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Claims is the decoded access token payload. Only the claims the dashboard
// cares about are extracted; the signature is never verified here, the
// upstream API owns token validity.
type Claims struct {
	Exp  int64  `json:"exp"`
	Role string `json:"role,omitempty"`
}

var errMalformedToken = errors.New("malformed token")

// DecodeClaims splits the token on '.', base64-decodes the payload segment and
// JSON-parses it. Any failure yields an error rather than a partial result.
func DecodeClaims(tok string) (Claims, error) {
	var claims Claims
	parts := strings.Split(tok, ".")
	if len(parts) < 2 {
		return claims, errMalformedToken
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return claims, errMalformedToken
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, errMalformedToken
	}
	return claims, nil
}

// decodeSegment accepts both raw and padded base64url, and plain base64 as a
// fallback for tokens minted by older backends.
func decodeSegment(seg string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "=")); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(seg)
}

// Valid reports whether the token decodes and its expiry is strictly in the
// future. Malformed tokens are simply invalid, never an error.
func Valid(tok string, now time.Time) bool {
	if tok == "" {
		return false
	}
	claims, err := DecodeClaims(tok)
	if err != nil {
		return false
	}
	return now.Unix() < claims.Exp
}
