package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Firestore    FirestoreConfig
	Fallback     FallbackStoreConfig
	Redis        RedisConfig
	OTP          OTPConfig
	OTPRateLimit OTPRateLimitConfig
	Expiry       ExpiryConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.OTP.validate(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGRICHAIN_APP_ENV" required:"true"`
	Port         string `envconfig:"AGRICHAIN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGRICHAIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGRICHAIN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type FirestoreConfig struct {
	ProjectID       string `envconfig:"AGRICHAIN_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"AGRICHAIN_GCP_CREDENTIALS_JSON"`
	// Disabled skips the primary store entirely; every operation lands on the
	// file fallback. Development only.
	Disabled bool `envconfig:"AGRICHAIN_FIRESTORE_DISABLED" default:"false"`
}

type FallbackStoreConfig struct {
	Dir string `envconfig:"AGRICHAIN_FALLBACK_DIR" default:"data"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGRICHAIN_REDIS_URL"`
	Address      string        `envconfig:"AGRICHAIN_REDIS_ADDR"`
	Password     string        `envconfig:"AGRICHAIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGRICHAIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGRICHAIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGRICHAIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGRICHAIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGRICHAIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGRICHAIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type OTPConfig struct {
	// AllowTestBypass accepts the fixed development code in place of the real
	// OTP. Must never be enabled in production; Load rejects that combination.
	AllowTestBypass bool   `envconfig:"AGRICHAIN_OTP_ALLOW_TEST_BYPASS" default:"false"`
	TestBypassCode  string `envconfig:"AGRICHAIN_OTP_TEST_BYPASS_CODE" default:"123456"`
}

type OTPRateLimitConfig struct {
	Window   time.Duration `envconfig:"AGRICHAIN_OTP_RATE_LIMIT_WINDOW" default:"5m"`
	PerOrder int           `envconfig:"AGRICHAIN_OTP_RATE_LIMIT_PER_ORDER" default:"5"`
	PerIP    int           `envconfig:"AGRICHAIN_OTP_RATE_LIMIT_PER_IP" default:"30"`
}

type ExpiryConfig struct {
	// OrderTTL is how long an order may sit in pending_confirmation before the
	// worker marks it expired.
	OrderTTL time.Duration `envconfig:"AGRICHAIN_ORDER_TTL" default:"240h"`
	Interval time.Duration `envconfig:"AGRICHAIN_EXPIRY_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"AGRICHAIN_EXPIRY_LOCK_TTL" default:"55m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"AGRICHAIN_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (o OTPConfig) validate(app AppConfig) error {
	if !o.AllowTestBypass {
		return nil
	}
	if app.IsProd() {
		return fmt.Errorf("%s must not be enabled when %s is %s", EnvOTPAllowTestBypass, EnvAppEnv, AppEnvProd)
	}
	if o.TestBypassCode == "" {
		return fmt.Errorf("%s requires a non-empty bypass code", EnvOTPAllowTestBypass)
	}
	return nil
}
