package database

import (
	"context"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)

type Params struct {
	fx.In

	Config    *config.Config
	ModelsOpt *ModelsOption    `optional:"true"`
	Logger    *logging.Service `optional:"true"`
	Lifecycle fx.Lifecycle     `optional:"true"`
}

func ProvideDatabaseFx(p Params) (*gorm.DB, error) {
	db, err := ProvideDatabase(*p.Config, p.ModelsOpt, p.Logger)
	if err != nil {
		return nil, err
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
	}

	return db, nil
}
