package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier resolves bearer tokens issued by the identity provider to a
// stable user identifier. The service only verifies tokens; it never
// issues them to end users.
type Verifier struct {
	key []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		log.Printf("[AUTH] WARNING: verifier initialized with empty secret")
	}
	return &Verifier{key: []byte(secret)}
}

// Verify parses and validates tokenString and returns the user identifier
// carried in its claims.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	})

	if err != nil {
		log.Printf("[AUTH] JWT Parse Error: %v", err)
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		log.Printf("[AUTH] VALIDATION FAILED: Token claims invalid or token not valid")
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

// MintToken signs a token for userID. Used by the dev tooling and tests;
// production tokens come from the identity provider.
func (v *Verifier) MintToken(userID string, ttl time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "roomchat",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}
