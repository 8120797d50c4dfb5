package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Provider signs and verifies RS256 JWTs.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiry     time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{privateKey: privKey, publicKey: pubKey, expiry: cfg.JWTExpiry}, nil
}

// NewProviderFromKey builds a provider around an in-memory key pair. Tests
// use it in place of key files.
func NewProviderFromKey(key *rsa.PrivateKey, expiry time.Duration) *Provider {
	return &Provider{privateKey: key, publicKey: &key.PublicKey, expiry: expiry}
}

func (p *Provider) Sign(subject, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(p.privateKey)
}

func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AuthorizeRoom reports whether token grants entry to a privileged push room.
func (p *Provider) AuthorizeRoom(room, token string) error {
	claims, err := p.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if room == domain.RoomAdmin && claims.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}
