package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "RECEIPTD"

// Config holds service and CLI settings loaded from an optional YAML file and
// RECEIPTD_* environment variables.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr" default:":8080" validate:"required"`
	LogLevel string `mapstructure:"log_level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	PostgresDSN string `mapstructure:"postgres_dsn" secret:"true"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" secret:"true"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`

	// Key set sourcing
	JWKSURL             string        `mapstructure:"jwks_url" validate:"omitempty,url"`
	KeySetTTL           time.Duration `mapstructure:"keyset_ttl" default:"5m" validate:"gt=0"`
	KeySetFetchTimeout  time.Duration `mapstructure:"keyset_fetch_timeout" default:"30s" validate:"gt=0"`
	KeySetFetchAttempts int           `mapstructure:"keyset_fetch_attempts" default:"3" validate:"gte=1,lte=10"`
	KeySetMaxBytes      int64         `mapstructure:"keyset_max_bytes" default:"1048576" validate:"gt=0"`

	AdminAPIKey string `mapstructure:"admin_api_key" secret:"true"`

	RateLimitRequests   int           `mapstructure:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window" default:"1m" validate:"gt=0"`
	RateLimitMaxKeys    int           `mapstructure:"rate_limit_max_keys" default:"10000" validate:"gt=0"`
	RateLimitFailClosed bool          `mapstructure:"rate_limit_fail_closed"`

	MaxBodyBytes int64 `mapstructure:"max_body_bytes" default:"1048576" validate:"gt=0"`
}

// Load reads configuration. An explicit path must exist; without one,
// receiptd.yaml is looked up in . and ./config and skipped when absent.
func Load(path string) (*Config, error) {
	cfg := Config{}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("receiptd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	typeOfCfg := reflect.TypeOf(cfg)
	for i := 0; i < typeOfCfg.NumField(); i++ {
		field := typeOfCfg.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// String returns a string representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := reflect.TypeOf(*c)
	var sb strings.Builder
	sb.WriteString("Config{")
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i).Interface()
		if field.Tag.Get("secret") == "true" && !v.Field(i).IsZero() {
			value = "***REDACTED***"
		}
		sb.WriteString(field.Name + ": " + fmt.Sprintf("%v", value))
		if i < t.NumField()-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// toSnakeCase converts CamelCase to snake_case
func toSnakeCase(str string) string {
	runes := []rune(str)
	var out []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				out = append(out, '_')
			}
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
