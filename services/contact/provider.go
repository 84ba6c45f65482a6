package contact

import (
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/captcha"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/tech-arch1tect/portfolio/services/mail"
	"go.uber.org/fx"
)

func ProvideContactService(cfg *config.Config, mailer *mail.Service, verifier *captcha.TurnstileVerifier, logger *logging.Service) *Service {
	return NewService(cfg, mailer, verifier, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideContactService),
)
