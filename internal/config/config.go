package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PICKSYNC"
	defaultHTTPAddress     = "127.0.0.1:7070"
	defaultDatabasePath    = "picksync.db"
	defaultLogLevel        = "info"
	defaultSyncIntervalSec = 120
	defaultRequestTimeout  = 15
	defaultAllowedOrigin   = "*"
)

// AppConfig captures runtime configuration for the picking agent.
type AppConfig struct {
	HTTPAddress    string
	RemoteBaseURL  string
	DatabasePath   string
	LogLevel       string
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	AllowedOrigin  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origin", defaultAllowedOrigin)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("sync.interval_seconds", defaultSyncIntervalSec)
	configViper.SetDefault("remote.timeout_seconds", defaultRequestTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		RemoteBaseURL:  configViper.GetString("remote.base_url"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SyncInterval:   time.Duration(configViper.GetInt("sync.interval_seconds")) * time.Second,
		RequestTimeout: time.Duration(configViper.GetInt("remote.timeout_seconds")) * time.Second,
		AllowedOrigin:  configViper.GetString("http.allowed_origin"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	trimmedBase := strings.TrimSpace(c.RemoteBaseURL)
	if trimmedBase == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	parsed, err := url.Parse(trimmedBase)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url must be an absolute URL")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be positive")
	}
	return nil
}
