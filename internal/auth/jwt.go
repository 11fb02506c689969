// Package auth issues and validates the bearer tokens that scope API calls
// to one account.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken     = errors.New("auth: empty token")
	ErrEmptySecret    = errors.New("auth: empty secret")
	ErrMissingAccount = errors.New("auth: missing account_id")
)

// Claims represents JWT claims used by this service.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// IssueJWT signs an HS256 token for accountID valid for ttl.
func IssueJWT(accountID, subject string, ttl time.Duration, secret []byte, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if accountID == "" {
		return "", ErrMissingAccount
	}
	if subject == "" {
		subject = accountID
	}

	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseJWT validates a JWT against the current time and returns claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	return ParseJWTAt(tokenString, secret, time.Now())
}

// ParseJWTAt validates a JWT as if the current time were now.
func ParseJWTAt(tokenString string, secret []byte, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.AccountID == "" {
		return nil, ErrMissingAccount
	}
	return claims, nil
}
