package totp

import (
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewProvider builds the service. When TOTP is turned off no manager is
// created and every operation reports ErrTOTPDisabled.
func NewProvider(cfg *config.Config, db *gorm.DB, logger *logging.Service) (*Service, error) {
	var manager *Manager
	if cfg.TOTP.Enabled {
		m, err := NewManager(cfg.TOTP.Key(), cfg.TOTP.Issuer, cfg.Auth.BcryptCost)
		if err != nil {
			return nil, err
		}
		manager = m
	}
	return NewService(cfg, db, manager, logger), nil
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
