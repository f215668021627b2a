package sessionx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator decides whether a stored session token is still usable
// without contacting the server. It is a freshness heuristic, not a
// security boundary: signatures are never checked here.
type TokenValidator struct {
	// Now returns the current instant. Nil means time.Now.
	Now func() time.Time
}

var defaultValidator = TokenValidator{}

// IsExpired reports whether token must be treated as expired at the current
// wall-clock time.
func IsExpired(token string) bool {
	return defaultValidator.IsExpired(token)
}

// IsExpired reports whether token must be treated as expired. Every failure
// path resolves to true.
func (v TokenValidator) IsExpired(token string) bool {
	exp, declared, ok := v.expiry(token)
	if !ok {
		return true
	}
	if !declared {
		return false
	}
	return !v.now().Before(exp)
}

// Check classifies token the way IsExpired does but reports why it is
// unusable: nil, or a *Error with code unauthenticated, malformed_token or
// token_expired.
func (v TokenValidator) Check(token string) error {
	if token == "" {
		return newError(ErrCodeUnauthenticated, nil)
	}
	exp, declared, ok := v.expiry(token)
	if !ok {
		return newError(ErrCodeMalformedToken, nil)
	}
	if declared && !v.now().Before(exp) {
		return newError(ErrCodeExpired, nil)
	}
	return nil
}

// ExpiresAt returns the expiry instant declared by token. declared is false
// when the payload carries no usable exp claim; ok is false when the token
// cannot be decoded at all.
func (v TokenValidator) ExpiresAt(token string) (exp time.Time, declared, ok bool) {
	return v.expiry(token)
}

func (v TokenValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// maxExpiryMillis keeps exp*1000 inside int64.
const maxExpiryMillis = float64(math.MaxInt64 / 2)

// expiry decodes the payload segment and returns its exp claim as an instant
// with millisecond precision. An exp of zero counts as absent.
func (v TokenValidator) expiry(token string) (exp time.Time, declared, ok bool) {
	if token == "" {
		return time.Time{}, false, false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false, false
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false, false
	}

	var claims map[string]json.RawMessage
	if err := json.Unmarshal(payload, &claims); err != nil || claims == nil {
		return time.Time{}, false, false
	}

	raw, found := claims["exp"]
	if !found || string(raw) == "null" {
		return time.Time{}, false, true
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return time.Time{}, false, false
	}
	seconds, err := number.Float64()
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, false, false
	}
	if seconds == 0 {
		return time.Time{}, false, true
	}

	millis := math.Floor(seconds * 1000)
	switch {
	case millis > maxExpiryMillis:
		millis = maxExpiryMillis
	case millis < -maxExpiryMillis:
		millis = -maxExpiryMillis
	}
	return time.UnixMilli(int64(millis)), true, true
}

// decodeSegment accepts base64url with or without padding, and falls back
// to the standard alphabet that browser-issued tokens sometimes carry.
func decodeSegment(seg string) ([]byte, error) {
	if seg == "" {
		return nil, errors.New("empty segment")
	}
	trimmed := strings.TrimRight(seg, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}

// InspectToken decodes token claims for display without verifying the
// signature or validating time claims.
func InspectToken(token string) (*Claims, error) {
	if token == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}
	return extractClaims(parsed), nil
}

func extractClaims(token jwt.Token) *Claims {
	private := token.PrivateClaims()
	claims := &Claims{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		ExpiresAt: token.Expiration(),
		IssuedAt:  token.IssuedAt(),
	}
	if v, ok := private["username"].(string); ok {
		claims.Username = v
	}
	if v, ok := private["nickname"].(string); ok {
		claims.Nickname = v
	}
	if v, ok := private["email"].(string); ok {
		claims.Email = strings.ToLower(v)
	}
	if len(private) > 0 {
		claims.CustomClaims = make(map[string]any, len(private))
		for k, v := range private {
			claims.CustomClaims[k] = v
		}
	}
	return claims
}
