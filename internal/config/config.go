package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "TRIPSYNC"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = DatabaseDriverSQLite
	defaultDatabaseDSN      = "tripsync.db"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultAuthIssuer       = "tripsync-auth"
	defaultCookieName       = "app_session"
	defaultTokenTTLMinutes  = 60
	defaultPingInterval     = 54 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultSendBuffer       = 256
	defaultMaxMessageBytes  = 64 * 1024
	defaultAllowedOriginAll = "*"
)

const (
	// DatabaseDriverSQLite selects the embedded pure-Go SQLite store.
	DatabaseDriverSQLite = "sqlite"
	// DatabaseDriverPostgres selects a PostgreSQL store reached through pgx.
	DatabaseDriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabaseDriver  string
	DatabaseDSN     string
	LogLevel        string
	LogFormat       string
	SigningSecret   string
	AuthIssuer      string
	AuthCookieName  string
	TokenTTL        time.Duration
	AllowedOrigins  []string
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
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
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOriginAll})
	configViper.SetDefault("realtime.ping_interval", defaultPingInterval)
	configViper.SetDefault("realtime.pong_wait", defaultPongWait)
	configViper.SetDefault("realtime.write_wait", defaultWriteWait)
	configViper.SetDefault("realtime.send_buffer", defaultSendBuffer)
	configViper.SetDefault("realtime.max_message_bytes", defaultMaxMessageBytes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:     configViper.GetString("database.dsn"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		AuthIssuer:      configViper.GetString("auth.issuer"),
		AuthCookieName:  configViper.GetString("auth.cookie_name"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AllowedOrigins:  configViper.GetStringSlice("cors.allowed_origins"),
		PingInterval:    configViper.GetDuration("realtime.ping_interval"),
		PongWait:        configViper.GetDuration("realtime.pong_wait"),
		WriteWait:       configViper.GetDuration("realtime.write_wait"),
		SendBuffer:      configViper.GetInt("realtime.send_buffer"),
		MaxMessageBytes: configViper.GetInt64("realtime.max_message_bytes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.PongWait <= 0 {
		return fmt.Errorf("realtime.pong_wait must be positive")
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		return fmt.Errorf("realtime.ping_interval must be positive and shorter than realtime.pong_wait")
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("realtime.write_wait must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("realtime.max_message_bytes must be positive")
	}
	return nil
}
