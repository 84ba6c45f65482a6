package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/database"
	"github.com/tech-arch1tect/portfolio/handlers"
	"github.com/tech-arch1tect/portfolio/middleware/ratelimit"
	"github.com/tech-arch1tect/portfolio/server"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/captcha"
	"github.com/tech-arch1tect/portfolio/services/contact"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/tech-arch1tect/portfolio/services/mail"
	"github.com/tech-arch1tect/portfolio/services/refreshtoken"
	"github.com/tech-arch1tect/portfolio/services/totp"
	"github.com/tech-arch1tect/portfolio/services/wishes"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gorm.io/gorm"
)

// Models lists every table the application owns.
func Models() []any {
	return []any{
		&auth.User{},
		&refreshtoken.RefreshToken{},
		&totp.BackupCode{},
		&totp.UsedCode{},
		&wishes.Wish{},
	}
}

type AppBuilder struct {
	config    *config.Config
	models    []any
	fxOptions []fx.Option
	errors    []error
	quiet     bool
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		models:    Models(),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithModels migrates extra models alongside the built-in ones.
func (b *AppBuilder) WithModels(models ...any) *AppBuilder {
	b.models = append(b.models, models...)
	return b
}

// WithFxOptions adds options to the graph, e.g. fx.Decorate to swap a
// component in tests.
func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

// WithQuietFx silences the container's own event log.
func (b *AppBuilder) WithQuietFx() *AppBuilder {
	b.quiet = true
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	app := &App{config: b.config}

	options := b.buildFxOptions()
	options = append(options, fx.Populate(&app.logger, &app.db, &app.server))

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}
	if b.config == nil {
		return errors.New("config is required")
	}
	return b.config.Validate()
}

func (b *AppBuilder) buildFxOptions() []fx.Option {
	options := []fx.Option{
		config.NewProvider(b.config),
		fx.Supply(database.WithModels(b.models...)),
		b.fxLogger(),

		logging.Module,
		database.Module,
		server.Module,

		auth.Module,
		jwt.Options,
		refreshtoken.Options,
		totp.Module,
		ratelimit.Module,

		mail.Module,
		captcha.Module,
		contact.Module,
		wishes.Module,

		handlers.Module,
	}

	return append(options, b.fxOptions...)
}

func (b *AppBuilder) fxLogger() fx.Option {
	if b.quiet {
		return fx.NopLogger
	}
	return fx.WithLogger(func(logger *logging.Service) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Logger()}
	})
}

// DB is exposed for callers that only need the migrated database, e.g.
// one-off maintenance commands.
func (b *AppBuilder) DB() (*gorm.DB, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	logger, err := logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return database.ProvideDatabase(*b.config, database.WithModels(b.models...), logger)
}
