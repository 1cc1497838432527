package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Log store strategies for the transcript
const (
	StoreMemory = "MEMORY"
	StoreRedis  = "REDIS"
	StoreSQLite = "SQLITE"
)

type Config struct {
	BackendURL      string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxEntries int
	LogStore      string

	WebAddr         string
	DBPath          string
	SnapshotArchive bool

	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool
	RedisLogKey   string

	NATSURLs          []string
	NATSUsername      string
	NATSPassword      string
	NATSToken         string
	NATSTLS           bool
	NATSEnabled       bool
	NATSSubjectPrefix string

	v *viper.Viper
}

// LoadConfig reads config.yaml from the working directory when present, then applies
// environment overrides on top of the defaults below.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("BACKEND_URL", "http://localhost:8000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REFRESH_INTERVAL", "0s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_ENTRIES", 500)
	v.SetDefault("LOG_STORE", StoreMemory)
	v.SetDefault("WEB_ADDR", ":8090")
	v.SetDefault("DB_PATH", "./panel.db")
	v.SetDefault("SNAPSHOT_ARCHIVE", false)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_LOG_KEY", "panel:log")
	v.SetDefault("NATS_URLS", "nats://localhost:4222")
	v.SetDefault("NATS_USERNAME", "")
	v.SetDefault("NATS_PASSWORD", "")
	v.SetDefault("NATS_TOKEN", "")
	v.SetDefault("NATS_TLS", false)
	v.SetDefault("NATS_ENABLED", false)
	v.SetDefault("NATS_SUBJECT_PREFIX", "panel")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BackendURL:        strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
		RequestTimeout:    v.GetDuration("REQUEST_TIMEOUT"),
		RefreshInterval:   v.GetDuration("REFRESH_INTERVAL"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         strings.ToLower(v.GetString("LOG_FORMAT")),
		LogFile:           v.GetString("LOG_FILE"),
		LogMaxEntries:     v.GetInt("LOG_MAX_ENTRIES"),
		LogStore:          strings.ToUpper(v.GetString("LOG_STORE")),
		WebAddr:           v.GetString("WEB_ADDR"),
		DBPath:            v.GetString("DB_PATH"),
		SnapshotArchive:   v.GetBool("SNAPSHOT_ARCHIVE"),
		RedisAddress:      v.GetString("REDIS_ADDRESS"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		RedisEnabled:      v.GetBool("REDIS_ENABLED"),
		RedisLogKey:       v.GetString("REDIS_LOG_KEY"),
		NATSURLs:          splitList(v.GetString("NATS_URLS")),
		NATSUsername:      v.GetString("NATS_USERNAME"),
		NATSPassword:      v.GetString("NATS_PASSWORD"),
		NATSToken:         v.GetString("NATS_TOKEN"),
		NATSTLS:           v.GetBool("NATS_TLS"),
		NATSEnabled:       v.GetBool("NATS_ENABLED"),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		v:                 v,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// OnChange watches the config file and calls fn with the reloaded config after
// every edit. A reload that fails validation is logged and skipped. It reports
// false when no config file was read, so there is nothing to watch.
func (c *Config) OnChange(fn func(*Config)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := fromViper(c.v)
		if err != nil {
			logger.Log.Warnf("Ignoring config change in %s: %v", e.Name, err)
			return
		}
		logger.Log.Infof("Config reloaded from %s", e.Name)
		fn(next)
	})
	c.v.WatchConfig()
	return true
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.BackendURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	if c.LogMaxEntries <= 0 {
		return fmt.Errorf("log max entries must be greater than 0")
	}

	switch c.LogStore {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if !c.RedisEnabled {
			return errors.New("log store REDIS requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("unsupported log store: %s", c.LogStore)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %s", c.LogFormat)
	}
	return nil
}

// UsesDatabase reports whether any component needs the SQLite file.
func (c *Config) UsesDatabase() bool {
	return c.SnapshotArchive || c.LogStore == StoreSQLite
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
