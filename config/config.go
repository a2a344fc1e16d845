package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Breaker defaults, matching the gateway's historical behaviour.
const (
	DefaultBreakerTimeout         = "3s"
	DefaultBreakerErrorThreshold  = 50
	DefaultBreakerVolumeThreshold = 4
	DefaultBreakerWindow          = 10
	DefaultBreakerResetTimeout    = "3s"
	DefaultHealthPath             = "/health"
)

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Environment  string `mapstructure:"environment"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	Header   string `mapstructure:"header"`
	Scheme   string `mapstructure:"scheme"`
	Secret   string `mapstructure:"secret"`
	TokenTTL string `mapstructure:"token_ttl"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

type StrategyConfig struct {
	Type string `mapstructure:"type"`
}

type BreakerConfig struct {
	Timeout         string `mapstructure:"timeout"`
	ErrorThreshold  int    `mapstructure:"error_threshold"`
	VolumeThreshold int    `mapstructure:"volume_threshold"`
	Window          int    `mapstructure:"window"`
	ResetTimeout    string `mapstructure:"reset_timeout"`
}

type ServiceConfig struct {
	URLs       []string      `mapstructure:"urls"`
	HealthPath string        `mapstructure:"health_path"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

type Config struct {
	Server      ServerConfig             `mapstructure:"server"`
	Logging     LoggingConfig            `mapstructure:"logging"`
	Auth        AuthConfig               `mapstructure:"auth"`
	HealthCheck HealthCheckConfig        `mapstructure:"health_check"`
	Strategy    StrategyConfig           `mapstructure:"strategy"`
	Services    map[string]ServiceConfig `mapstructure:"services"`
}

// Load reads <name>.yaml from the given directories, ./config and . by
// default, overlays environment variables (server.address becomes
// SERVER_ADDRESS) and validates the result.
func Load(name string, paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("auth.header", "auth-token")
	v.SetDefault("auth.scheme", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("strategy.type", strategy.RoundRobin)

	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables", slog.String("name", name))
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.applyServiceDefaults()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// applyServiceDefaults fills breaker and probe settings left out of a
// service entry. Map entries cannot carry viper defaults.
func (c *Config) applyServiceDefaults() {
	for name, svc := range c.Services {
		if svc.HealthPath == "" {
			svc.HealthPath = DefaultHealthPath
		}
		if svc.Breaker.Timeout == "" {
			svc.Breaker.Timeout = DefaultBreakerTimeout
		}
		if svc.Breaker.ErrorThreshold == 0 {
			svc.Breaker.ErrorThreshold = DefaultBreakerErrorThreshold
		}
		if svc.Breaker.Window == 0 {
			svc.Breaker.Window = DefaultBreakerWindow
		}
		if svc.Breaker.VolumeThreshold == 0 {
			svc.Breaker.VolumeThreshold = min(DefaultBreakerVolumeThreshold, svc.Breaker.Window)
		}
		if svc.Breaker.ResetTimeout == "" {
			svc.Breaker.ResetTimeout = DefaultBreakerResetTimeout
		}
		c.Services[name] = svc
	}
}

// RequireServices reports an error unless every named dependency is
// configured.
func (c *Config) RequireServices(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := c.Services[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("services not configured: %s", strings.Join(missing, ", "))
	}

	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						httpserver.ValidateAddress,
					),
					validation.Field(&sc.ReadTimeout, validation.By(validateDuration)),
					validation.Field(&sc.WriteTimeout, validation.By(validateDuration)),
					validation.Field(&sc.IdleTimeout, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Auth,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AuthConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AuthConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Header, validation.Required),
					validation.Field(&ac.TokenTTL, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(strategy.RoundRobin, strategy.Random, strategy.LeastCalls),
					),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Each(validation.By(validateServiceConfig)),
		),
	)
}

// RequireSecret reports an error when no signing secret is configured. Only
// binaries that sign or verify tokens call it.
func (c *Config) RequireSecret() error {
	return validation.Validate(c.Auth.Secret,
		validation.Required.Error("auth.secret must be set"),
		validation.When(c.Server.Environment == EnvProd, validation.Length(32, 0)),
	)
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	return validation.ValidateStruct(&svc,
		validation.Field(&svc.URLs,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateServerURL)),
		),
		validation.Field(&svc.HealthPath, validation.Required),
		validation.Field(&svc.Breaker, validation.By(validateBreakerConfig)),
	)
}

func validateBreakerConfig(value interface{}) error {
	bc, ok := value.(BreakerConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
	}

	return validation.ValidateStruct(&bc,
		validation.Field(&bc.Timeout, validation.Required, validation.By(validateDuration)),
		validation.Field(&bc.ErrorThreshold, validation.Min(1), validation.Max(100)),
		validation.Field(&bc.Window, validation.Min(1)),
		validation.Field(&bc.VolumeThreshold, validation.Min(1), validation.Max(bc.Window)),
		validation.Field(&bc.ResetTimeout, validation.Required, validation.By(validateDuration)),
	)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if durationStr == "" {
		return nil
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

// Timeouts converts the server timeouts for httpserver.New.
func (s ServerConfig) Timeouts() httpserver.Timeouts {
	return httpserver.Timeouts{
		Read:  Duration(s.ReadTimeout),
		Write: Duration(s.WriteTimeout),
		Idle:  Duration(s.IdleTimeout),
	}
}

// Duration parses a validated duration string. Empty yields zero.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
