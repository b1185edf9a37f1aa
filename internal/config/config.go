package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "FOOTPRINT"
	defaultAPIBaseURL   = "http://localhost:8000"
	defaultAuthBaseURL  = "http://localhost:8000/auth/v1"
	defaultStatePath    = "footprint.db"
	defaultLogLevel     = "info"
	defaultHTTPTimeout  = 15
	defaultListLimit    = 50
	defaultStubAddress  = "0.0.0.0:8000"
	defaultStubSecret   = "footprint-dev-secret"
	minimumListLimit    = 1
	maximumListLimit    = 100
	minimumHTTPTimeoutS = 1
)

// AppConfig captures runtime configuration for the footprint client.
type AppConfig struct {
	APIBaseURL     string
	AuthBaseURL    string
	AuthAPIKey     string
	StatePath      string
	LogLevel       string
	RequestTimeout time.Duration
	ListLimit      int
	StubAddress    string
	StubSecret     string
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

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("auth.base_url", defaultAuthBaseURL)
	configViper.SetDefault("auth.api_key", "")
	configViper.SetDefault("state.path", defaultStatePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("http.timeout_seconds", defaultHTTPTimeout)
	configViper.SetDefault("activities.limit", defaultListLimit)
	configViper.SetDefault("stub.address", defaultStubAddress)
	configViper.SetDefault("stub.signing_secret", defaultStubSecret)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:     configViper.GetString("api.base_url"),
		AuthBaseURL:    configViper.GetString("auth.base_url"),
		AuthAPIKey:     configViper.GetString("auth.api_key"),
		StatePath:      configViper.GetString("state.path"),
		LogLevel:       configViper.GetString("log.level"),
		RequestTimeout: time.Duration(configViper.GetInt("http.timeout_seconds")) * time.Second,
		ListLimit:      configViper.GetInt("activities.limit"),
		StubAddress:    configViper.GetString("stub.address"),
		StubSecret:     configViper.GetString("stub.signing_secret"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.AuthBaseURL) == "" {
		return fmt.Errorf("auth.base_url is required")
	}
	if strings.TrimSpace(c.StatePath) == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.RequestTimeout < minimumHTTPTimeoutS*time.Second {
		return fmt.Errorf("http.timeout_seconds must be at least %d", minimumHTTPTimeoutS)
	}
	if c.ListLimit < minimumListLimit || c.ListLimit > maximumListLimit {
		return fmt.Errorf("activities.limit must be between %d and %d", minimumListLimit, maximumListLimit)
	}
	return nil
}
