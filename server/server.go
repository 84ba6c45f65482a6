package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logging.Service
}

type errorBody struct {
	Error string `json:"error"`
}

func New(cfg *config.Config, logger *logging.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger.Named("http"),
	}

	e.HTTPErrorHandler = s.handleError
	if extractor := ipExtractor(cfg.Server.TrustedProxies); extractor != nil {
		e.IPExtractor = extractor
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if logger != nil {
		e.Use(logging.RequestLogger(s.logger, "/api/health"))
	}

	return s
}

// ipExtractor trusts X-Forwarded-For only from the configured proxy ranges.
func ipExtractor(proxies []string) echo.IPExtractor {
	var options []echo.TrustOption
	for _, proxy := range proxies {
		if _, network, err := net.ParseCIDR(proxy); err == nil {
			options = append(options, echo.TrustIPRange(network))
		} else if ip := net.ParseIP(proxy); ip != nil {
			bits := 8 * len(ip.To16())
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			options = append(options, echo.TrustIPRange(&net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}))
		}
	}
	if len(options) == 0 {
		return nil
	}
	return echo.ExtractIPFromXFFHeader(options...)
}

// handleError renders every error as {"error": message}. Internal errors
// are logged and never exposed.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			message = m
		case error:
			message = m.Error()
		default:
			message = http.StatusText(status)
		}
	}

	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorBody{Error: message})
	}
	if err != nil && s.logger != nil {
		s.logger.Error("failed to write error response", zap.Error(err))
	}
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	addr := s.Address()
	if s.logger != nil {
		s.logger.Info("starting HTTP server", zap.String("address", addr))
	}

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("shutting down HTTP server")
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) Group(prefix string, m ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(prefix, m...)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
