package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	htmlTemplate "html/template"
	"regexp"
	"strings"
	textTemplate "text/template"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

var (
	ErrMissingFields  = errors.New("name, email, subject and message are required")
	ErrMissingCaptcha = errors.New("captcha token is required")
	ErrCaptchaFailed  = errors.New("captcha verification failed")
	ErrInvalidEmail   = errors.New("invalid email format")
	ErrDelivery       = errors.New("failed to deliver message")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Mailer interface {
	SendHTML(ctx context.Context, to []string, replyTo, subject, htmlBody, textBody string) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type Message struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Subject      string `json:"subject"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captchaToken"`
}

var htmlBody = htmlTemplate.Must(htmlTemplate.New("contact.html").
	Funcs(htmlTemplate.FuncMap{"lines": lines}).
	Parse(`<div style="font-family: Arial, sans-serif; max-width: 650px; margin: auto; padding: 24px;">
  <h2 style="margin: 0 0 20px 0;">New Contact Form Message</h2>
  <p><strong>Name</strong><br>{{.Name}}</p>
  <p><strong>Email</strong><br><a href="mailto:{{.Email}}">{{.Email}}</a></p>
  <p><strong>Subject</strong><br>{{.Subject}}</p>
  <p><strong>Message</strong><br>{{lines .Message}}</p>
  <p style="font-size: 13px; color: #4b5563;">Sent from the website contact form. Verified by Cloudflare Turnstile.</p>
</div>
`))

var textBody = textTemplate.Must(textTemplate.New("contact.txt").Parse(`New contact form message

Name: {{.Name}}
Email: {{.Email}}
Subject: {{.Subject}}

{{.Message}}
`))

// lines escapes s and turns newlines into <br>.
func lines(s string) htmlTemplate.HTML {
	escaped := html.EscapeString(strings.ReplaceAll(s, "\r\n", "\n"))
	return htmlTemplate.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

type Service struct {
	recipient string
	mailer    Mailer
	captcha   CaptchaVerifier
	logger    *logging.Service
}

func NewService(cfg *config.Config, mailer Mailer, captcha CaptchaVerifier, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing contact service", zap.String("recipient", cfg.Contact.Recipient))
	}
	return &Service{
		recipient: cfg.Contact.Recipient,
		mailer:    mailer,
		captcha:   captcha,
		logger:    logger,
	}
}

// Submit validates a contact form message, checks its captcha token and
// mails it to the site owner with Reply-To set to the sender.
func (s *Service) Submit(ctx context.Context, msg Message, clientIP string) error {
	if strings.TrimSpace(msg.Name) == "" || strings.TrimSpace(msg.Email) == "" ||
		strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Message) == "" {
		return ErrMissingFields
	}

	if msg.CaptchaToken == "" {
		return ErrMissingCaptcha
	}

	ok, err := s.captcha.Verify(ctx, msg.CaptchaToken, clientIP)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("captcha verification error", zap.String("ip", clientIP), zap.Error(err))
		}
		return ErrCaptchaFailed
	}
	if !ok {
		return ErrCaptchaFailed
	}

	email := strings.TrimSpace(msg.Email)
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	msg.Email = email

	var htmlBuf, textBuf bytes.Buffer
	if err := htmlBody.Execute(&htmlBuf, msg); err != nil {
		return fmt.Errorf("failed to render contact email: %w", err)
	}
	if err := textBody.Execute(&textBuf, msg); err != nil {
		return fmt.Errorf("failed to render contact email: %w", err)
	}

	subject := "Contact Form: " + strings.TrimSpace(msg.Subject)
	if err := s.mailer.SendHTML(ctx, []string{s.recipient}, email, subject, htmlBuf.String(), textBuf.String()); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send contact email", zap.Error(err))
		}
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if s.logger != nil {
		s.logger.Info("contact message sent", zap.String("ip", clientIP))
	}
	return nil
}
