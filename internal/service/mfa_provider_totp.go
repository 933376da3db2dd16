package service

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const defaultMFAIssuer = "Consultorio"

type TOTPProvider struct {
	Issuer string
	Period uint
	Skew   uint
	Digits otp.Digits
}

func NewTOTPProvider(issuer string) *TOTPProvider {
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultMFAIssuer
	}
	return &TOTPProvider{
		Issuer: issuer,
		Period: 30,
		Skew:   1,
		Digits: otp.DigitsSix,
	}
}

func (p *TOTPProvider) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.Issuer,
		AccountName: accountName,
		Period:      p.Period,
		Digits:      p.Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (p *TOTPProvider) ValidateCode(secret string, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    p.Period,
		Skew:      p.Skew,
		Digits:    p.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
