package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var ErrNoRecipients = errors.New("at least one recipient is required")

// Client is the part of *mail.Client the service needs.
type Client interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Service struct {
	config *config.MailConfig
	client Client
	logger *logging.Service
}

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	if logger != nil {
		logger.Info("initializing mail service",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("encryption", cfg.Encryption),
			zap.String("from_address", cfg.FromAddress))
	}

	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	client, err := mail.NewClient(cfg.Host, clientOptions(cfg)...)
	if err != nil {
		if logger != nil {
			logger.Error("failed to create mail client",
				zap.Error(err),
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port))
		}
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewServiceWithClient(cfg, logger, client)
}

func NewServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client Client) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}
	return &Service{config: cfg, client: client, logger: logger}, nil
}

func clientOptions(cfg *config.MailConfig) []mail.Option {
	opts := []mail.Option{mail.WithPort(cfg.Port)}

	switch cfg.Encryption {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	return opts
}

func (s *Service) newMessage() (*mail.Msg, error) {
	message := mail.NewMsg()
	if err := message.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}
	return message, nil
}

func (s *Service) send(ctx context.Context, message *mail.Msg) error {
	start := time.Now()
	err := s.client.DialAndSendWithContext(ctx, message)
	duration := time.Since(start)

	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send email",
				zap.Error(err),
				zap.Duration("attempt_duration", duration))
		}
		return fmt.Errorf("failed to send email: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("email sent", zap.Duration("send_duration", duration))
	}
	return nil
}

// SendHTML sends an HTML message with an optional plain text alternative.
// An empty replyTo leaves the header unset.
func (s *Service) SendHTML(ctx context.Context, to []string, replyTo, subject, htmlBody, textBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}

	message, err := s.newMessage()
	if err != nil {
		return err
	}

	if err := message.To(to...); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to set TO addresses", zap.Error(err), zap.Strings("recipients", to))
		}
		return fmt.Errorf("failed to set TO addresses: %w", err)
	}

	if replyTo != "" {
		if err := message.ReplyTo(replyTo); err != nil {
			return fmt.Errorf("failed to set Reply-To address: %w", err)
		}
	}

	message.Subject(subject)
	message.SetBodyString(mail.TypeTextHTML, htmlBody)
	if textBody != "" {
		message.AddAlternativeString(mail.TypeTextPlain, textBody)
	}

	return s.send(ctx, message)
}

// SendPlain sends a text-only message.
func (s *Service) SendPlain(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}

	message, err := s.newMessage()
	if err != nil {
		return err
	}
	if err := message.To(to...); err != nil {
		return fmt.Errorf("failed to set TO addresses: %w", err)
	}

	message.Subject(subject)
	message.SetBodyString(mail.TypeTextPlain, body)

	return s.send(ctx, message)
}
