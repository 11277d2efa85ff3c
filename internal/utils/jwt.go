package utils // package utils provides code generation and token helpers

import (
	"errors" // sentinel for malformed claims
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and reading signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// Tokens are normally issued by the identity service; this package only
// needs to mint them for local tooling and tests.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// StaffClaims is the subset of token claims the reservation service relies
// on: who acts (sub), with which account type (role) and for which company.
type StaffClaims struct {
	UserCode string
	Role     string
	Company  string
}

// ErrInvalidClaims is returned when a token lacks the staff claims.
var ErrInvalidClaims = errors.New("invalid staff claims")

// NewAccessToken builds and signs an HS256 JWT for a staff account.  The
// JWT carries sub, role, company, exp and iat.
func NewAccessToken(secret string, c StaffClaims, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":     c.UserCode,
		"role":    c.Role,
		"company": c.Company,
		"exp":     exp.Unix(),
		"iat":     now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token and extracts the staff claims.
func ParseAccessToken(secret, raw string) (StaffClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC signed.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return StaffClaims{}, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return StaffClaims{}, ErrInvalidClaims
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	company, _ := claims["company"].(string)
	if sub == "" || role == "" {
		return StaffClaims{}, ErrInvalidClaims
	}
	return StaffClaims{UserCode: sub, Role: role, Company: company}, nil
}
