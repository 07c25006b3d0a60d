package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "hatch-backend"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserId uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
}

func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiration: expiration}
}

func (t *TokenIssuer) NewAccessToken(userId uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId: userId,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userId.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		slog.Error("error signing access token", "user_id", userId, "error", err)
		return "", fmt.Errorf("error signing access token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserId == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
