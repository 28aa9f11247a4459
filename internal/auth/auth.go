package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved profile of an authenticated client.
type Identity struct {
	UID         string
	DisplayName string
	AvatarURL   string
}

var ErrInvalidToken = errors.New("invalid auth token")

// Authenticator resolves a join token to an identity. Verification happens
// before any roster mutation; a failure rejects the connection outright.
type Authenticator interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTAuthenticator verifies HS256 join tokens minted by the account service.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

type joinClaims struct {
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	jwt.RegisteredClaims
}

func (a *JWTAuthenticator) Verify(ctx context.Context, token string) (Identity, error) {
	var claims joinClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	name := claims.DisplayName
	if name == "" {
		name = claims.Subject
	}
	return Identity{UID: claims.Subject, DisplayName: name, AvatarURL: claims.AvatarURL}, nil
}

// InsecureAuthenticator accepts any non-empty token as "uid" or "uid:name".
// Development only.
type InsecureAuthenticator struct{}

func (InsecureAuthenticator) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	uid, name := token, token
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			uid, name = token[:i], token[i+1:]
			break
		}
	}
	if uid == "" || name == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: uid, DisplayName: name}, nil
}
