package logging

import (
	"context"

	"github.com/tech-arch1tect/portfolio/config"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
)

func NewLoggingService(cfg *config.Config, lc fx.Lifecycle) (*Service, error) {
	service, err := NewService(Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stdout sync fails on some platforms; nothing useful to do with it
			_ = service.Sync()
			return nil
		},
	})

	return service, nil
}
