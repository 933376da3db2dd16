package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	resend "github.com/resend/resend-go/v2"
)

var ErrEmailNotConfigured = errors.New("email sender not configured")

// ResendEmailSender delivers password reset links through Resend.
type ResendEmailSender struct {
	client     *resend.Client
	From       string
	AppBaseURL string
	ResetPath  string
}

func NewResendEmailSender(apiKey string, from string, appBaseURL string) *ResendEmailSender {
	sender := &ResendEmailSender{
		From:       from,
		AppBaseURL: strings.TrimRight(appBaseURL, "/"),
		ResetPath:  "/reset-password",
	}
	if strings.TrimSpace(apiKey) != "" && strings.TrimSpace(from) != "" {
		sender.client = resend.NewClient(apiKey)
	}
	return sender
}

func (s *ResendEmailSender) SendPasswordResetEmail(ctx context.Context, email string, token string) error {
	if s.client == nil {
		return ErrEmailNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	link := s.resetURL(token)
	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    s.From,
		To:      []string{email},
		Subject: "Restablecer contraseña",
		Html:    fmt.Sprintf("<p>Para restablecer tu contraseña ingresá al siguiente enlace:</p><p><a href=\"%s\">Restablecer contraseña</a></p>", link),
		Text:    fmt.Sprintf("Restablecer contraseña: %s", link),
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

func (s *ResendEmailSender) resetURL(token string) string {
	if s.AppBaseURL == "" {
		return token
	}
	path := s.ResetPath
	if path == "" {
		path = "/"
	}
	return s.AppBaseURL + path + "?token=" + url.QueryEscape(token)
}
