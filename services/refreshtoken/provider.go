package refreshtoken

import (
	"context"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideLedger(db *gorm.DB, logger *logging.Service) Ledger {
	return NewGormLedger(db, logger)
}

func ProvideRefreshTokenService(lc fx.Lifecycle, cfg *config.Config, ledger Ledger, codec *jwt.Service, users *auth.Service, logger *logging.Service) *Service {
	service := NewService(cfg, ledger, codec, users, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			service.StartCleanupWorker()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			service.StopCleanupWorker()
			return nil
		},
	})

	return service
}

var Options = fx.Options(
	fx.Provide(ProvideLedger, ProvideRefreshTokenService),
)
