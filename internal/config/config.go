package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/teamclean/pkg/core/services"
	"github.com/jakechorley/teamclean/pkg/core/sweeps"
	"github.com/jakechorley/teamclean/pkg/core/visibility"
)

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// VisibilityConfig tunes when confirmed workers see the exact address
type VisibilityConfig struct {
	ReferenceHour *int `yaml:"referenceHour,omitempty" validate:"omitempty,min=0,max=23"`
	WindowHours   int  `yaml:"windowHours,omitempty" validate:"omitempty,min=1"`
}

// RequestsConfig configures join request and offer lifetimes
type RequestsConfig struct {
	TTL      time.Duration `yaml:"ttl,omitempty" validate:"omitempty,min=1m"`
	OfferTTL time.Duration `yaml:"offerTTL,omitempty" validate:"omitempty,min=1m"`
}

// SweepsConfig configures the background sweeps
type SweepsConfig struct {
	ResponseExpirationInterval time.Duration `yaml:"responseExpirationInterval,omitempty" validate:"omitempty,min=1m"`
	BackupTimeoutInterval      time.Duration `yaml:"backupTimeoutInterval,omitempty" validate:"omitempty,min=1m"`
	RequestExpirationInterval  time.Duration `yaml:"requestExpirationInterval,omitempty" validate:"omitempty,min=1m"`
	ReminderInterval           time.Duration `yaml:"reminderInterval,omitempty" validate:"omitempty,min=1m"`
	ReminderRRule              string        `yaml:"reminderRRule,omitempty"`
	ReminderHorizonDays        int           `yaml:"reminderHorizonDays,omitempty" validate:"omitempty,min=1,max=31"`
	ClientResponseWindow       time.Duration `yaml:"clientResponseWindow,omitempty" validate:"omitempty,min=1m"`
}

// GmailConfig enables the email channel. Leave it out to send in-app notifications only.
type GmailConfig struct {
	CredentialsFile string        `yaml:"credentialsFile" validate:"required"`
	Sender          string        `yaml:"sender" validate:"required,email"`
	Interval        time.Duration `yaml:"interval,omitempty"`
}

// TracingConfig enables the stdout trace exporter
type TracingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"outputFile,omitempty"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL string           `yaml:"databaseURL" validate:"required"`
	PIIKey      string           `yaml:"piiKey" validate:"required,hexadecimal,len=64"`
	LogDir      string           `yaml:"logDir,omitempty"`
	Server      ServerConfig     `yaml:"server"`
	Visibility  VisibilityConfig `yaml:"visibility"`
	Requests    RequestsConfig   `yaml:"requests"`
	Sweeps      SweepsConfig     `yaml:"sweeps"`
	Gmail       *GmailConfig     `yaml:"gmail,omitempty"`
	Tracing     TracingConfig    `yaml:"tracing"`
}

const (
	DefaultServerAddr = ":8080"
	configFilePrefix  = "teamclean_config"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadWithEnv loads teamclean_config.<env>.yaml from the current directory or the user's home directory
func LoadWithEnv(env string) (*Config, error) {
	if env == "" {
		return nil, fmt.Errorf("environment is required")
	}
	configPath, err := findConfigFile(fmt.Sprintf("%s.%s.yaml", configFilePrefix, env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Sweeps.ReminderRRule != "" {
		if _, err := rrule.StrToRRule(cfg.Sweeps.ReminderRRule); err != nil {
			return fmt.Errorf("invalid rrule in sweeps.reminderRRule: %w", err)
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	if c.Server.Addr == "" {
		return DefaultServerAddr
	}
	return c.Server.Addr
}

// VisibilityPolicy builds the address disclosure policy, falling back to defaults
func (c *Config) VisibilityPolicy() visibility.Policy {
	policy := visibility.NewPolicy()
	if c.Visibility.ReferenceHour != nil {
		policy.ReferenceHour = *c.Visibility.ReferenceHour
	}
	if c.Visibility.WindowHours > 0 {
		policy.Window = time.Duration(c.Visibility.WindowHours) * time.Hour
	}
	return policy
}

// ServiceOptions builds the workflow options; the caller supplies the encrypter
func (c *Config) ServiceOptions() services.Options {
	return services.Options{
		RequestTTL: c.Requests.TTL,
		OfferTTL:   c.Requests.OfferTTL,
	}
}

func (c *Config) SweepOptions() sweeps.Options {
	return sweeps.Options{
		ClientResponseWindow: c.Sweeps.ClientResponseWindow,
		ReminderHorizonDays:  c.Sweeps.ReminderHorizonDays,
	}
}

// SweepInterval returns the configured interval for a sweep, or its default
func (c *Config) SweepInterval(name string) time.Duration {
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch name {
	case sweeps.SweepResponseExpiration:
		return pick(c.Sweeps.ResponseExpirationInterval, sweeps.DefaultResponseExpirationInterval)
	case sweeps.SweepBackupTimeout:
		return pick(c.Sweeps.BackupTimeoutInterval, sweeps.DefaultBackupTimeoutInterval)
	case sweeps.SweepRequestExpiration:
		return pick(c.Sweeps.RequestExpirationInterval, sweeps.DefaultRequestExpirationInterval)
	case sweeps.SweepUnassignedReminder:
		return pick(c.Sweeps.ReminderInterval, sweeps.DefaultReminderInterval)
	}
	return 0
}

// findConfigFile searches for the config file in the current directory then the home directory
func findConfigFile(configFileName string) (string, error) {
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", configFileName)
}
