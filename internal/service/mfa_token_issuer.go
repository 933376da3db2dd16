package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidMFAToken = errors.New("invalid mfa token")

const mfaTokenType = "mfa"

// MFATokenIssuerJWT issues the short-lived token that bridges a password
// login and the TOTP step. It is never accepted as an access token.
type MFATokenIssuerJWT struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

type mfaClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (m MFATokenIssuerJWT) IssueMFAToken(userID uuid.UUID) (string, time.Duration, error) {
	ttl := m.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	now := m.now()
	claims := mfaClaims{
		Type: mfaTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

func (m MFATokenIssuerJWT) ParseMFAToken(token string) (uuid.UUID, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.Now != nil {
		options = append(options, jwt.WithTimeFunc(m.Now))
	}
	parsed, err := jwt.ParseWithClaims(token, &mfaClaims{}, func(*jwt.Token) (any, error) {
		return m.Secret, nil
	}, options...)
	if err != nil {
		return uuid.Nil, ErrInvalidMFAToken
	}
	claims, ok := parsed.Claims.(*mfaClaims)
	if !ok || !parsed.Valid || claims.Type != mfaTokenType {
		return uuid.Nil, ErrInvalidMFAToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidMFAToken
	}
	return id, nil
}

func (m MFATokenIssuerJWT) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
