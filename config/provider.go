package config

import "go.uber.org/fx"

// NewProvider supplies cfg when non-nil, otherwise loads and validates the
// environment. Validation failures abort fx startup.
func NewProvider(cfg *Config) fx.Option {
	if cfg != nil {
		return fx.Provide(func() (*Config, error) {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		})
	}

	return fx.Provide(func() (*Config, error) {
		loaded := &Config{}
		if err := LoadConfig(loaded); err != nil {
			return nil, err
		}
		return loaded, nil
	})
}
