package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string   `mapstructure:"PORT"`
	Env                    string   `mapstructure:"ENV"`
	DatabaseURL            string   `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32    `mapstructure:"DB_MIN_CONNS"`
	TempDir                string   `mapstructure:"TEMP_DIR"`
	RecognizerCmd          string   `mapstructure:"RECOGNIZER_CMD"`
	ReporterCmd            string   `mapstructure:"REPORTER_CMD"`
	WorkerDir              string   `mapstructure:"WORKER_DIR"`
	WorkerTimeoutSeconds   int      `mapstructure:"WORKER_TIMEOUT_SECONDS"`
	RecognitionConcurrency int      `mapstructure:"RECOGNITION_CONCURRENCY"`
	ModelSeries            string   `mapstructure:"MODEL_SERIES"`
	CORSOrigins            []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit              string   `mapstructure:"BODY_LIMIT"`
	RateLimitRPS           float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int      `mapstructure:"RATE_LIMIT_BURST"`
	AuthSigningKey         string   `mapstructure:"AUTH_SIGNING_KEY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TEMP_DIR", "temp")
	v.SetDefault("RECOGNIZER_CMD", "python3 image_recognition_service.py")
	v.SetDefault("REPORTER_CMD", "python3 main.py")
	v.SetDefault("WORKER_DIR", "backend")
	v.SetDefault("WORKER_TIMEOUT_SECONDS", 0)
	v.SetDefault("RECOGNITION_CONCURRENCY", 1)
	v.SetDefault("MODEL_SERIES", "gemini")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "25M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("TEMP_DIR")
	v.BindEnv("RECOGNIZER_CMD")
	v.BindEnv("REPORTER_CMD")
	v.BindEnv("WORKER_DIR")
	v.BindEnv("WORKER_TIMEOUT_SECONDS")
	v.BindEnv("RECOGNITION_CONCURRENCY")
	v.BindEnv("MODEL_SERIES")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("AUTH_SIGNING_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode AUTH_SIGNING_KEY is required and must be a valid 64-character hex
// string (32 bytes when decoded) so that real JWT authentication is enforced.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RecognizerCmd) == "" {
		return fmt.Errorf("RECOGNIZER_CMD must not be empty")
	}
	if strings.TrimSpace(c.ReporterCmd) == "" {
		return fmt.Errorf("REPORTER_CMD must not be empty")
	}
	if c.RecognitionConcurrency < 1 {
		return fmt.Errorf("RECOGNITION_CONCURRENCY must be >= 1, got %d", c.RecognitionConcurrency)
	}
	if c.WorkerTimeoutSeconds < 0 {
		return fmt.Errorf("WORKER_TIMEOUT_SECONDS must be >= 0, got %d", c.WorkerTimeoutSeconds)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY is required when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.AuthSigningKey != "" {
		keyBytes, err := hex.DecodeString(c.AuthSigningKey)
		if err != nil {
			return fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}

// SigningKey returns the decoded AUTH_SIGNING_KEY, or nil when unset.
func (c *Config) SigningKey() []byte {
	if c.AuthSigningKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil
	}
	return key
}
