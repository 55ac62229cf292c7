package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dattormm/datto-go/internal/dattoclient"
	"github.com/dattormm/datto-go/internal/observability"
	"github.com/dattormm/datto-go/internal/platform"
	"github.com/dattormm/datto-go/internal/tokensource"
)

// envPrefix scopes environment overrides. Nested keys use a double
// underscore, e.g. DATTO_CLIENT__TIMEOUT=10s sets client.timeout.
const envPrefix = "DATTO_"

// Config is the merged configuration: defaults, then the TOML file, then
// environment variables, then command-line flags.
type Config struct {
	Platform string       `koanf:"platform" validate:"required,platform"`
	Auth     AuthConfig   `koanf:"auth"`
	Client   ClientConfig `koanf:"client"`
	Proxy    ProxyConfig  `koanf:"proxy"`
	Log      LogConfig    `koanf:"log"`
}

// AuthConfig locates the API credentials.
type AuthConfig struct {
	// APIKey and APISecret take precedence over Storage when both are set.
	APIKey    string            `koanf:"api_key"`
	APISecret string            `koanf:"api_secret"`
	Storage   SecretStorageType `koanf:"storage" validate:"oneof=env file keyring"`
	File      string            `koanf:"file" validate:"required_if=Storage file"`
}

// ClientConfig tunes the authenticated client.
type ClientConfig struct {
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0s"`
	ExpiryBuffer time.Duration `koanf:"expiry_buffer" validate:"gte=0s"`
	// BaseURL replaces the platform API URL, e.g. for a mock server.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

// ProxyConfig configures the local API proxy.
type ProxyConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// LogConfig selects the logging pipeline.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// defaults returns the base layer of the configuration.
func defaults() map[string]any {
	return map[string]any{
		"platform":             platform.Merlot.String(),
		"auth.storage":         string(SecretStorageFile),
		"auth.file":            defaultCredentialsFile(),
		"client.timeout":       dattoclient.DefaultTimeout.String(),
		"client.expiry_buffer": tokensource.DefaultExpiryBuffer.String(),
		"proxy.addr":           "127.0.0.1:4000",
		"log.level":            "info",
		"log.format":           "text",
		"log.exporter":         observability.ExporterNone,
	}
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "datto-credentials.json"
	}
	return filepath.Join(dir, "datto-go", "credentials.json")
}

// LoadConfig merges configuration layers and validates the result.
// path may be empty to skip the file layer. overrides holds flag values
// keyed by their dotted config path. environ is typically os.Environ.
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if environ == nil {
		environ = os.Environ
	}
	envProvider := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DATTO_* variables onto config keys. DATTO_API_KEY and
// DATTO_API_SECRET are accepted as shorthands for the auth section.
func envKey(key, value string) (string, any) {
	name := strings.TrimPrefix(key, envPrefix)
	switch name {
	case "API_KEY":
		return "auth.api_key", value
	case "API_SECRET":
		return "auth.api_secret", value
	}
	return strings.ReplaceAll(strings.ToLower(name), "__", "."), value
}

// Validate checks field constraints, including that Platform names a
// known platform.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		_, err := platform.Parse(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("registering validators: %w", err)
	}

	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Tag() == "platform" {
					_, perr := platform.Parse(c.Platform)
					return fmt.Errorf("invalid config: %w", perr)
				}
			}
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParsedPlatform returns the validated platform.
func (c *Config) ParsedPlatform() (platform.Platform, error) {
	return platform.Parse(c.Platform)
}

// platformName returns the canonical platform name, or the raw value when
// it does not parse.
func (c *Config) platformName() string {
	if p, err := platform.Parse(c.Platform); err == nil {
		return p.String()
	}
	return c.Platform
}

// SlogLevel parses Log.Level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// ObservabilityOptions translates LogConfig for observability.Instrument.
func (c *LogConfig) ObservabilityOptions() (observability.Options, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return observability.Options{}, err
	}
	return observability.Options{
		Level:    level,
		Format:   c.Format,
		Exporter: c.Exporter,
	}, nil
}

// ClientOptions translates ClientConfig for dattoclient.New.
func (c *ClientConfig) ClientOptions() []dattoclient.Option {
	opts := []dattoclient.Option{
		dattoclient.WithTimeout(c.Timeout),
		dattoclient.WithExpiryBuffer(c.ExpiryBuffer),
	}
	if c.BaseURL != "" {
		opts = append(opts, dattoclient.WithBaseURL(c.BaseURL))
	}
	return opts
}
