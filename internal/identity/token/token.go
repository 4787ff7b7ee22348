// Package token issues and verifies credential tokens: long-lived HS256 JWTs
// whose subject is the identity id.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/identity/domain"
)

var signingMethod = jwt.SigningMethodHS256

type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Signer struct {
	key    []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

func NewSigner(key []byte, ttl time.Duration, clk clock.Clock) *Signer {
	return &Signer{
		key:   key,
		ttl:   ttl,
		clock: clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

func (s *Signer) Issue(subject string) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := jwt.NewNumericDate(now.Add(s.ttl))
	signed, err := jwt.NewWithClaims(signingMethod, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: expiresAt,
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Time.UTC(), nil
}

// Verify checks the signature and algorithm before the expiry.
func (s *Signer) Verify(raw string) (Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(strings.TrimSpace(raw), &registered, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, domain.ErrTokenExpired
	case err != nil, registered.Subject == "":
		return Claims{}, domain.ErrTokenInvalid
	}

	claims := Claims{Subject: registered.Subject, ExpiresAt: registered.ExpiresAt.Time.UTC()}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// LooksLikeToken reports whether ref decodes as a JWT, without verifying it.
func LooksLikeToken(ref string) bool {
	if strings.Count(ref, ".") != 2 {
		return false
	}
	_, _, err := jwt.NewParser().ParseUnverified(ref, &jwt.RegisteredClaims{})
	return err == nil
}
