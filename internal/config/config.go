// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CRM        CRMConfig        `mapstructure:"crm"`
	UnitOfWork UnitOfWorkConfig `mapstructure:"unitofwork"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CRMConfig holds credentials for the default org plus named alternates.
type CRMConfig struct {
	InstanceURL    string                      `mapstructure:"instance_url"`
	APIVersion     string                      `mapstructure:"api_version"`
	AccessToken    string                      `mapstructure:"access_token"`
	TimeoutSeconds int                         `mapstructure:"timeout_seconds"`
	Connections    map[string]ConnectionConfig `mapstructure:"connections"`
}

// ConnectionConfig describes a named alternate org.
type ConnectionConfig struct {
	InstanceURL string `mapstructure:"instance_url"`
	AccessToken string `mapstructure:"access_token"`
}

// UnitOfWorkConfig governs the commit pipeline.
type UnitOfWorkConfig struct {
	Workers              int `mapstructure:"workers"`
	QueueDepth           int `mapstructure:"queue_depth"`
	CommitTimeoutSeconds int `mapstructure:"commit_timeout_seconds"`
	EnqueueTimeoutSec    int `mapstructure:"enqueue_timeout_seconds"`
}

// WebhookConfig controls callback delivery.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RendererConfig configures the headless PDF subsystem.
type RendererConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig sets the blob store for rendered documents.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls the commit audit ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for event forwarding.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRMBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crm.api_version", "v58.0")
	v.SetDefault("crm.timeout_seconds", 15)
	v.SetDefault("unitofwork.workers", 4)
	v.SetDefault("unitofwork.queue_depth", 64)
	v.SetDefault("unitofwork.commit_timeout_seconds", 30)
	v.SetDefault("unitofwork.enqueue_timeout_seconds", 5)
	v.SetDefault("webhook.timeout_seconds", 10)
	v.SetDefault("renderer.enabled", false)
	v.SetDefault("renderer.max_parallel", 1)
	v.SetDefault("renderer.nav_timeout_seconds", 25)
	v.SetDefault("storage.prefix", "documents")
	v.SetDefault("storage.content_type", "application/pdf")
	v.SetDefault("db.table", "uow_commits")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.UnitOfWork.Workers <= 0 {
		return fmt.Errorf("unitofwork.workers must be > 0")
	}
	if c.UnitOfWork.CommitTimeoutSeconds <= 0 {
		return fmt.Errorf("unitofwork.commit_timeout_seconds must be > 0")
	}
	if c.Renderer.Enabled && c.Renderer.MaxParallel <= 0 {
		return fmt.Errorf("renderer.max_parallel must be > 0 when renderer is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for name, conn := range c.CRM.Connections {
		if conn.InstanceURL == "" {
			return fmt.Errorf("crm.connections.%s.instance_url must be set", name)
		}
	}
	return nil
}

// CommitTimeout converts the configured commit budget into a duration.
func (c Config) CommitTimeout() time.Duration {
	return time.Duration(c.UnitOfWork.CommitTimeoutSeconds) * time.Second
}

// EnqueueTimeout bounds how long a handler may wait on a full queue.
func (c Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.UnitOfWork.EnqueueTimeoutSec) * time.Second
}
