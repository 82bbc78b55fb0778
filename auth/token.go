package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenLifetime = 24 * time.Hour

// Claims is the data stored inside a huddle JWT.
type Claims struct {
	UserId string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the bearer credentials used both by the
// REST middleware and the websocket identity gate.
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
}

func NewTokenIssuer(secret string, lifetime time.Duration) *TokenIssuer {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return &TokenIssuer{secret: []byte(secret), lifetime: lifetime}
}

// GenerateToken creates a signed JWT for the given user id.
func (t *TokenIssuer) GenerateToken(userId string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "huddle",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// VerifyToken parses and validates the signature and expiration of a
// token string and returns the embedded user id.
func (t *TokenIssuer) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.UserId, nil
	}
	return "", jwt.ErrSignatureInvalid
}
