package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAppName          = "LumenBank Onboarding"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = 15 * time.Minute
	defaultRefreshTokenTTL  = 7 * 24 * time.Hour
	defaultCodeTTL          = 15 * time.Minute
	defaultResendCooldown   = 30 * time.Second
	defaultCodeMaxAttempts  = 5
	defaultStagingCacheTTL  = 72 * time.Hour
	defaultPendingRetention = 7 * 24 * time.Hour
	defaultReaperSchedule   = "@hourly"
	defaultMinPasswordLen   = 8
	defaultRole             = "customer"
	defaultAccountType      = "checking"
	defaultMailDriver       = MailDriverLog
	defaultMailExchange     = "onboarding.mail"
	defaultMailRoutingKey   = "mail.send"
	defaultSMTPPort         = 587
	defaultS3Region         = "us-east-1"
	defaultLoginPerMinute   = 5
	defaultSignupPerMinute  = 10
	defaultResendPerMinute  = 3
	devSecretPlaceholder    = "dev-secret-change-me"
)

// Mail drivers understood by the notification wiring.
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
	MailDriverAMQP = "amqp"
)

// Config captures application runtime configuration loaded from the environment
// (optionally seeded from a .env file).
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Signup SignupConfig
	Mail   MailConfig
	S3     S3Config

	LoginPerMinute  int
	SignupPerMinute int
	ResendPerMinute int
}

// SignupConfig holds settings for the signup and provisioning flow.
type SignupConfig struct {
	MinPasswordLength      int
	DefaultRole            string
	DefaultAccountType     string
	CodeTTL                time.Duration
	CodeResendCooldown     time.Duration
	CodeMaxAttempts        int
	StagingCacheTTL        time.Duration
	PendingSignupRetention time.Duration
	ReaperSchedule         string
}

// MailConfig selects and configures the outgoing mail transport.
type MailConfig struct {
	Driver       string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	RabbitMQURL  string
	Exchange     string
	RoutingKey   string
}

// S3Config points at the object storage used for identity documents. An empty
// bucket disables S3 and documents are kept in memory.
type S3Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// Enabled reports whether S3 document storage is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay)
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	v.SetDefault("ACCESS_TOKEN_TTL", defaultAccessTokenTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL)
	v.SetDefault("PASSWORD_MIN_LENGTH", defaultMinPasswordLen)
	v.SetDefault("DEFAULT_ROLE", defaultRole)
	v.SetDefault("DEFAULT_ACCOUNT_TYPE", defaultAccountType)
	v.SetDefault("CODE_TTL", defaultCodeTTL)
	v.SetDefault("CODE_RESEND_COOLDOWN", defaultResendCooldown)
	v.SetDefault("CODE_MAX_ATTEMPTS", defaultCodeMaxAttempts)
	v.SetDefault("STAGING_CACHE_TTL", defaultStagingCacheTTL)
	v.SetDefault("PENDING_SIGNUP_RETENTION", defaultPendingRetention)
	v.SetDefault("REAPER_SCHEDULE", defaultReaperSchedule)
	v.SetDefault("MAIL_DRIVER", defaultMailDriver)
	v.SetDefault("MAIL_FROM", "no-reply@lumenbank.test")
	v.SetDefault("MAIL_EXCHANGE", defaultMailExchange)
	v.SetDefault("MAIL_ROUTING_KEY", defaultMailRoutingKey)
	v.SetDefault("SMTP_PORT", defaultSMTPPort)
	v.SetDefault("S3_REGION", defaultS3Region)
	v.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", defaultLoginPerMinute)
	v.SetDefault("SIGNUP_RATE_LIMIT_PER_MINUTE", defaultSignupPerMinute)
	v.SetDefault("RESEND_RATE_LIMIT_PER_MINUTE", defaultResendPerMinute)
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:         v.GetString("APP_NAME"),
		AppEnv:          v.GetString("APP_ENV"),
		Port:            v.GetString("PORT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		RefreshSecret:   v.GetString("REFRESH_SECRET"),
		LoginPerMinute:  v.GetInt("LOGIN_RATE_LIMIT_PER_MINUTE"),
		SignupPerMinute: v.GetInt("SIGNUP_RATE_LIMIT_PER_MINUTE"),
		ResendPerMinute: v.GetInt("RESEND_RATE_LIMIT_PER_MINUTE"),
		Signup: SignupConfig{
			MinPasswordLength:  v.GetInt("PASSWORD_MIN_LENGTH"),
			DefaultRole:        v.GetString("DEFAULT_ROLE"),
			DefaultAccountType: strings.ToLower(v.GetString("DEFAULT_ACCOUNT_TYPE")),
			CodeMaxAttempts:    v.GetInt("CODE_MAX_ATTEMPTS"),
			ReaperSchedule:     v.GetString("REAPER_SCHEDULE"),
		},
		Mail: MailConfig{
			Driver:       strings.ToLower(v.GetString("MAIL_DRIVER")),
			From:         v.GetString("MAIL_FROM"),
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetInt("SMTP_PORT"),
			SMTPUsername: v.GetString("SMTP_USERNAME"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
			RabbitMQURL:  v.GetString("RABBITMQ_URL"),
			Exchange:     v.GetString("MAIL_EXCHANGE"),
			RoutingKey:   v.GetString("MAIL_ROUTING_KEY"),
		},
		S3: S3Config{
			Bucket:       v.GetString("S3_BUCKET"),
			Region:       v.GetString("S3_REGION"),
			BaseEndpoint: v.GetString("S3_BASE_ENDPOINT"),
			AccessKey:    v.GetString("S3_ACCESS_KEY"),
			SecretKey:    v.GetString("S3_SECRET_KEY"),
		},
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"CODE_TTL", &cfg.Signup.CodeTTL},
		{"CODE_RESEND_COOLDOWN", &cfg.Signup.CodeResendCooldown},
		{"STAGING_CACHE_TTL", &cfg.Signup.StagingCacheTTL},
		{"PENDING_SIGNUP_RETENTION", &cfg.Signup.PendingSignupRetention},
	}
	for _, d := range durations {
		value, err := durationValue(v, d.key)
		if err != nil {
			return Config{}, err
		}
		*d.dst = value
	}

	if IsDev(cfg.AppEnv) {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devSecretPlaceholder
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devSecretPlaceholder + "-refresh"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// durationValue accepts KEY_SECONDS as an integer override, otherwise KEY as a Go duration.
func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if raw := strings.TrimSpace(v.GetString(secondsKey)); raw != "" {
		seconds, err := parseSeconds(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	raw := v.Get(key)
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseSeconds(raw string) (int, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return seconds, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if c.JWTSecret == "" || c.RefreshSecret == "" {
		return fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}
	if !IsDev(c.AppEnv) && strings.HasPrefix(c.JWTSecret, devSecretPlaceholder) {
		return fmt.Errorf("JWT_SECRET must not use the development placeholder when APP_ENV=%s", c.AppEnv)
	}
	if c.Signup.MinPasswordLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8")
	}
	if c.Signup.CodeMaxAttempts <= 0 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be positive")
	}
	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST must be set when MAIL_DRIVER=smtp")
		}
	case MailDriverAMQP:
		if c.Mail.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL must be set when MAIL_DRIVER=amqp")
		}
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.Mail.Driver)
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether env names a local development environment.
func IsDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
