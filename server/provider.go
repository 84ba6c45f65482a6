package server

import (
	"context"

	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func registerLifecycle(lc fx.Lifecycle, srv *Server, logger *logging.Service, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					if logger != nil {
						logger.Error("HTTP server stopped", zap.Error(err))
					}
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)
