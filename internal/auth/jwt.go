// Package auth issues and validates the operator tokens that guard the
// admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped into every token and required on validation.
const Issuer = "settlement-engine"

type Claims struct {
	OperatorID uuid.UUID
	Email      string
	ExpiresAt  time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func GenerateToken(operatorID uuid.UUID, email string, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   operatorID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("ValidateToken: invalid token claims")
	}

	operatorID, err := uuid.Parse(tc.Subject)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid subject: %w", err)
	}

	return &Claims{
		OperatorID: operatorID,
		Email:      tc.Email,
		ExpiresAt:  tc.ExpiresAt.Time,
	}, nil
}
