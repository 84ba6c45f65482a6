package handlers

import (
	jwtmw "github.com/tech-arch1tect/portfolio/middleware/jwt"
	"github.com/tech-arch1tect/portfolio/server"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"go.uber.org/fx"
)

func provideAccessVerifier(svc *jwt.Service) jwtmw.AccessVerifier {
	return svc
}

var Module = fx.Options(
	fx.Provide(
		NewAuthHandler,
		NewContactHandler,
		NewWishesHandler,
		NewHealthHandler,
		NewDocument,
		provideAccessVerifier,
	),
	fx.Invoke(func(srv *server.Server, p RouteParams) {
		RegisterRoutes(srv.Echo(), p)
	}),
)
