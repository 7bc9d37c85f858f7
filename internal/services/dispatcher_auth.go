package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// DispatcherAuth issues and verifies the bearer tokens that change-stream
// dispatchers present to the document-store ingestion endpoint.
type DispatcherAuth struct {
	secret []byte
}

type DispatcherClaims struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

func NewDispatcherAuth(secret string) *DispatcherAuth {
	return &DispatcherAuth{secret: []byte(secret)}
}

func (a *DispatcherAuth) GenerateToken(subject string, expiry time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *DispatcherAuth) VerifyToken(tokenString string) (*DispatcherClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, ErrInvalidToken
	}
	tokenID, _ := claims["jti"].(string)

	return &DispatcherClaims{
		Subject:   subject,
		TokenID:   tokenID,
		ExpiresAt: expiresAt.Time,
	}, nil
}
