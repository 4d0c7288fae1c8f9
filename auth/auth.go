// Package auth verifies the bearer credential presented by upstream signal
// producers to the intake endpoint. It is narrowed from the teacher's full
// user-session authentication down to this single concern: the dashboard,
// registration, and OTP flows it also implemented are out of scope here.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecret is the signing secret, set once from config at process start.
var JWTSecret []byte

// SetJWTSecret sets the JWT secret key.
func SetJWTSecret(secret string) {
	JWTSecret = []byte(secret)
}

// Claims identifies the upstream signal producer that signed the token.
type Claims struct {
	Producer string `json:"producer"`
	jwt.RegisteredClaims
}

// GenerateJWT issues a bearer token for a named upstream producer. Used by
// operational tooling to mint credentials for a new signal source, not by
// the intake path itself.
func GenerateJWT(producer string) (string, error) {
	claims := Claims{
		Producer: producer,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "tradebridge",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ValidateJWT validates a bearer token presented to the intake endpoint.
func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
