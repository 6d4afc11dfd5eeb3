package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"

	QTableBackendFile     = "file"
	QTableBackendPostgres = "postgres"
	QTableBackendRedis    = "redis"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	AuthMode    string `mapstructure:"AUTH_MODE"`
	AuthSecret  string `mapstructure:"AUTH_SECRET"`
	AuthIssuer  string `mapstructure:"AUTH_ISSUER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	ClassifierURL     string        `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeout time.Duration `mapstructure:"CLASSIFIER_TIMEOUT"`
	ClassifierRetries int           `mapstructure:"CLASSIFIER_RETRIES"`

	QTableBackend  string `mapstructure:"QTABLE_BACKEND"`
	QTablePath     string `mapstructure:"QTABLE_PATH"`
	QTableRedisKey string `mapstructure:"QTABLE_REDIS_KEY"`

	RLLearningRate    float64       `mapstructure:"RL_LEARNING_RATE"`
	RLDiscount        float64       `mapstructure:"RL_DISCOUNT"`
	RLEpsilon         float64       `mapstructure:"RL_EPSILON"`
	RLEpsilonDecay    float64       `mapstructure:"RL_EPSILON_DECAY"`
	RLMinEpsilon      float64       `mapstructure:"RL_MIN_EPSILON"`
	RLSeed            int64         `mapstructure:"RL_SEED"`
	RLBindingTTL      time.Duration `mapstructure:"RL_BINDING_TTL"`
	FeedbackSaveEvery int           `mapstructure:"FEEDBACK_SAVE_EVERY"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_SECRET", "AUTH_ISSUER",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"CLASSIFIER_URL", "CLASSIFIER_TIMEOUT", "CLASSIFIER_RETRIES",
	"QTABLE_BACKEND", "QTABLE_PATH", "QTABLE_REDIS_KEY",
	"RL_LEARNING_RATE", "RL_DISCOUNT", "RL_EPSILON", "RL_EPSILON_DECAY",
	"RL_MIN_EPSILON", "RL_SEED", "RL_BINDING_TTL", "FEEDBACK_SAVE_EVERY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("KAFKA_TOPIC", "triage.events")
	v.SetDefault("CLASSIFIER_TIMEOUT", 5*time.Second)
	v.SetDefault("CLASSIFIER_RETRIES", 2)
	v.SetDefault("QTABLE_BACKEND", QTableBackendFile)
	v.SetDefault("QTABLE_PATH", "data/q_table.json")
	v.SetDefault("QTABLE_REDIS_KEY", "triage:qtable")
	v.SetDefault("RL_LEARNING_RATE", 0.1)
	v.SetDefault("RL_DISCOUNT", 0.95)
	v.SetDefault("RL_EPSILON", 0.1)
	v.SetDefault("RL_EPSILON_DECAY", 0.995)
	v.SetDefault("RL_MIN_EPSILON", 0.01)
	v.SetDefault("RL_SEED", 0)
	v.SetDefault("RL_BINDING_TTL", 6*time.Hour)
	v.SetDefault("FEEDBACK_SAVE_EVERY", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.QTableBackend = strings.ToLower(strings.TrimSpace(cfg.QTableBackend))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments run without auth and everything else requires JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// KafkaEnabled reports whether lifecycle events are published.
func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", mode)
		}
	case AuthModeJWT:
		if len(c.AuthSecret) < 32 {
			return fmt.Errorf("AUTH_SECRET must be at least 32 bytes when AUTH_MODE is %q", mode)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}

	switch c.QTableBackend {
	case QTableBackendFile:
		if c.QTablePath == "" {
			return fmt.Errorf("QTABLE_PATH is required when QTABLE_BACKEND is %q", c.QTableBackend)
		}
	case QTableBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when QTABLE_BACKEND is %q", c.QTableBackend)
		}
	case QTableBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QTABLE_BACKEND is %q", c.QTableBackend)
		}
	default:
		return fmt.Errorf("QTABLE_BACKEND must be file, postgres or redis, got %q", c.QTableBackend)
	}

	if c.RLLearningRate <= 0 || c.RLLearningRate > 1 {
		return fmt.Errorf("RL_LEARNING_RATE must be in (0,1], got %g", c.RLLearningRate)
	}
	if c.RLDiscount < 0 || c.RLDiscount >= 1 {
		return fmt.Errorf("RL_DISCOUNT must be in [0,1), got %g", c.RLDiscount)
	}
	if c.RLEpsilon < 0 || c.RLEpsilon > 1 {
		return fmt.Errorf("RL_EPSILON must be in [0,1], got %g", c.RLEpsilon)
	}
	if c.RLEpsilonDecay <= 0 || c.RLEpsilonDecay > 1 {
		return fmt.Errorf("RL_EPSILON_DECAY must be in (0,1], got %g", c.RLEpsilonDecay)
	}
	if c.RLMinEpsilon < 0 || c.RLMinEpsilon > c.RLEpsilon {
		return fmt.Errorf("RL_MIN_EPSILON must be in [0, RL_EPSILON], got %g", c.RLMinEpsilon)
	}
	if c.RLBindingTTL <= 0 {
		return fmt.Errorf("RL_BINDING_TTL must be positive, got %s", c.RLBindingTTL)
	}
	if c.FeedbackSaveEvery < 1 {
		return fmt.Errorf("FEEDBACK_SAVE_EVERY must be at least 1, got %d", c.FeedbackSaveEvery)
	}
	if c.ClassifierRetries < 0 {
		return fmt.Errorf("CLASSIFIER_RETRIES must not be negative, got %d", c.ClassifierRetries)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
