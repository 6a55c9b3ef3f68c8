package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"logLevel"`
	DatabaseURL       string `yaml:"databaseURL"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	JWTSecret         string `yaml:"jwtSecret"`
	SessionTTL        string `yaml:"sessionTTL"`
	OpenAIBaseURL     string `yaml:"openaiBaseURL"`
	OpenAIAPIKey      string `yaml:"openaiAPIKey"`
	ChatModel         string `yaml:"chatModel"`
	CompletionTimeout string `yaml:"completionTimeout"`
	MaxActivePrompts  int    `yaml:"maxActivePrompts"`
	MaxUploadSizeMB   int    `yaml:"maxUploadSizeMB"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("COMPLETION_TIMEOUT"); v != "" {
		cfg.CompletionTimeout = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.OpenAIBaseURL == "" {
		return errors.New("config: openaiBaseURL is required (set in config.yaml or OPENAI_BASE_URL)")
	}
	if cfg.ChatModel == "" {
		return errors.New("config: chatModel is required (set in config.yaml or CHAT_MODEL)")
	}
	if cfg.SessionTTL != "" {
		if _, err := time.ParseDuration(cfg.SessionTTL); err != nil {
			return fmt.Errorf("config: sessionTTL: %w", err)
		}
	}
	if cfg.CompletionTimeout != "" {
		if _, err := time.ParseDuration(cfg.CompletionTimeout); err != nil {
			return fmt.Errorf("config: completionTimeout: %w", err)
		}
	}
	if cfg.MaxActivePrompts < 0 {
		return errors.New("config: maxActivePrompts must be >= 0")
	}
	if cfg.MaxUploadSizeMB < 0 {
		return errors.New("config: maxUploadSizeMB must be >= 0")
	}
	return nil
}

// ParseSessionTTL returns the configured session lifetime, defaulting to 24h.
func (c FileConfig) ParseSessionTTL() time.Duration {
	if c.SessionTTL == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ParseCompletionTimeout returns the provider call timeout, defaulting to 60s.
func (c FileConfig) ParseCompletionTimeout() time.Duration {
	if c.CompletionTimeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(c.CompletionTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
