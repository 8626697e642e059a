package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "TANDEM"
	defaultHTTPAddress   = "0.0.0.0:3000"
	defaultStorageKind   = StorageBackendFilesystem
	defaultDataDir       = "data"
	defaultDatabasePath  = "tandem.db"
	defaultFlushInterval = time.Second
	defaultLogLevel      = "info"
)

// Storage backend selectors accepted by storage.backend.
const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendSQLite     = "sqlite"
)

// AppConfig captures runtime configuration for the sync server.
type AppConfig struct {
	HTTPAddress    string
	StorageBackend string
	DataDir        string
	DatabasePath   string
	FlushInterval  time.Duration
	SigningSecret  string
	DebugState     bool
	LogLevel       string
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
	configViper.SetDefault("storage.backend", defaultStorageKind)
	configViper.SetDefault("storage.data_dir", defaultDataDir)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("flush.interval", defaultFlushInterval)
	configViper.SetDefault("debug.state_endpoint", false)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		StorageBackend: strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		DataDir:        configViper.GetString("storage.data_dir"),
		DatabasePath:   configViper.GetString("database.path"),
		FlushInterval:  configViper.GetDuration("flush.interval"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		DebugState:     configViper.GetBool("debug.state_endpoint"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.StorageBackend {
	case StorageBackendFilesystem:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("storage.data_dir is required for the filesystem backend")
		}
	case StorageBackendSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", StorageBackendFilesystem, StorageBackendSQLite)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush.interval must be positive")
	}
	return nil
}
