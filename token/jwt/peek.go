package jwt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// PeekClaims parses a structurally valid JWT without verifying its signature.
// Only use the result to decide which verification path to take.
func PeekClaims(rawToken string) (jwtlib.MapClaims, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("error extracting claims")
	}
	return claims, nil
}

// TryGetClaim returns the named claim rendered as a string, if present and non-empty
func TryGetClaim(rawToken, claimName string) (string, bool) {
	claims, err := PeekClaims(rawToken)
	if err != nil {
		return "", false
	}
	return ClaimString(claims, claimName)
}

// ClaimString renders a claim value as a string
func ClaimString(claims jwtlib.MapClaims, claimName string) (string, bool) {
	switch v := claims[claimName].(type) {
	case string:
		return v, v != ""
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// ExpiresAt returns the exp claim of an unverified token
func ExpiresAt(rawToken string) (time.Time, bool) {
	claims, err := PeekClaims(rawToken)
	if err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
