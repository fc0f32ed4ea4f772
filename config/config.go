package config

import (
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
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

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type BackendConfig struct {
	URI                   string  `mapstructure:"uri"`
	MaxConnections        int     `mapstructure:"max_connections"`
	ConnectTimeoutSeconds float64 `mapstructure:"connect_timeout_seconds"`
}

type SessionConfig struct {
	TTLSeconds   int  `mapstructure:"ttl_seconds"`
	CookieSecure bool `mapstructure:"cookie_secure"`
}

type RetryConfig struct {
	MaxRetries       int     `mapstructure:"max_retries"`
	BaseDelaySeconds float64 `mapstructure:"base_delay_seconds"`
	MaxDelaySeconds  float64 `mapstructure:"max_delay_seconds"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetSeconds     int `mapstructure:"reset_seconds"`
}

type HealthCheckConfig struct {
	IntervalSeconds float64 `mapstructure:"interval_seconds"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Backend        BackendConfig        `mapstructure:"backend"`
	Session        SessionConfig        `mapstructure:"session"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8090")
	viper.SetDefault("backend.uri", "")
	viper.SetDefault("backend.max_connections", 30)
	viper.SetDefault("backend.connect_timeout_seconds", 1.5)
	viper.SetDefault("session.ttl_seconds", 3600)
	viper.SetDefault("session.cookie_secure", false)
	viper.SetDefault("retry.max_retries", 2)
	viper.SetDefault("retry.base_delay_seconds", 0.1)
	viper.SetDefault("retry.max_delay_seconds", 0.5)
	viper.SetDefault("circuit_breaker.failure_threshold", 3)
	viper.SetDefault("circuit_breaker.reset_seconds", 15)
	viper.SetDefault("health_check.interval_seconds", 3)
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
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
				)
			}),
		),
		validation.Field(&c.Backend,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BackendConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BackendConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.URI, validation.By(validateBackendURI)),
					validation.Field(&bc.MaxConnections, validation.Required, validation.Min(1)),
					validation.Field(&bc.ConnectTimeoutSeconds, validation.Required, validation.Min(0.001)),
				)
			}),
		),
		validation.Field(&c.Session,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SessionConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SessionConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.TTLSeconds, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Retry,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.MaxRetries, validation.Min(0)),
					validation.Field(&rc.BaseDelaySeconds, validation.Required, validation.Min(0.001)),
					validation.Field(&rc.MaxDelaySeconds, validation.Required, validation.Min(0.001)),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&cc.ResetSeconds, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.IntervalSeconds, validation.Required, validation.Min(0.001)),
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
	)
}

// RemoteEnabled reports whether a backend URI is configured.
// An empty URI means the session store runs in local-only mode.
func (c *Config) RemoteEnabled() bool {
	return c.Backend.URI != ""
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return secondsToDuration(c.Backend.ConnectTimeoutSeconds)
}

func (c *Config) RetryBaseDelay() time.Duration {
	return secondsToDuration(c.Retry.BaseDelaySeconds)
}

func (c *Config) RetryMaxDelay() time.Duration {
	return secondsToDuration(c.Retry.MaxDelaySeconds)
}

func (c *Config) CircuitResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreaker.ResetSeconds) * time.Second
}

func (c *Config) HealthCheckInterval() time.Duration {
	return secondsToDuration(c.HealthCheck.IntervalSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func validateBackendURI(value interface{}) error {
	uri, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	// Empty is allowed: local-only mode.
	if uri == "" {
		return nil
	}

	if _, err := redis.ParseURL(uri); err != nil {
		return validation.NewError("validation_invalid_uri", "must be a valid backend URI (e.g. redis://localhost:6379/0)")
	}

	return nil
}
