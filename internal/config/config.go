// Package config provides configuration management for Shelfarr.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IndexerProtocol identifies the transfer protocol behind an indexer.
type IndexerProtocol string

const (
	ProtocolTorrent IndexerProtocol = "torrent"
	ProtocolUsenet  IndexerProtocol = "usenet"
	ProtocolDirect  IndexerProtocol = "direct"
)

// Config holds all configuration for Shelfarr.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Kafka contains broker settings for outbox event delivery.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Outbox contains outbox poller settings.
	Outbox OutboxConfig `mapstructure:"outbox"`
	// Library contains library backend (Audiobookshelf) client settings.
	Library LibraryConfig `mapstructure:"library"`
	// Prowlarr contains indexer aggregation service settings.
	Prowlarr ProwlarrConfig `mapstructure:"prowlarr"`
	// DownloadClient contains torrent client settings.
	DownloadClient DownloadClientConfig `mapstructure:"download_client"`
	// Indexers lists the configured indexers with their seeding policies.
	Indexers []IndexerConfig `mapstructure:"indexers"`
	// Matching contains library-match thresholds.
	Matching MatchingConfig `mapstructure:"matching"`
	// Ranking contains candidate-ranking preferences.
	Ranking RankingConfig `mapstructure:"ranking"`
	// Approval contains the request approval policy.
	Approval ApprovalConfig `mapstructure:"approval"`
	// Media contains filesystem settings for the organized library.
	Media MediaConfig `mapstructure:"media"`
	// Cleanup contains the periodic seeding-cleanup worker settings.
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8686).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the Prometheus metrics port (default: 9090).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password; loaded only from the environment.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a pooled connection.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the output format (json, console).
	Format string `mapstructure:"format"`
	// Output is the output destination (stdout, stderr).
	Output string `mapstructure:"output"`
}

// KafkaConfig holds broker settings for outbox event delivery.
type KafkaConfig struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the topic outbox events are published to.
	Topic string `mapstructure:"topic"`
	// Enabled disables publishing entirely when false; events stay queued in
	// the outbox table.
	Enabled bool `mapstructure:"enabled"`
}

// OutboxConfig holds outbox poller settings.
type OutboxConfig struct {
	// PollInterval is the delay between polls for unpublished events.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// BatchSize is the maximum number of events fetched per poll.
	BatchSize int `mapstructure:"batch_size"`
	// MaxAttempts is the number of delivery attempts before an event is
	// left for manual inspection.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// LibraryConfig holds library backend client settings.
type LibraryConfig struct {
	// BaseURL is the Audiobookshelf server address.
	BaseURL string `mapstructure:"base_url"`
	// APIKey authenticates against the library backend; loaded only from the
	// environment.
	APIKey string `mapstructure:"-"`
	// LibraryID selects the backend library searched for owned items.
	LibraryID string `mapstructure:"library_id"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProwlarrConfig holds indexer aggregation service settings.
type ProwlarrConfig struct {
	// BaseURL is the Prowlarr server address.
	BaseURL string `mapstructure:"base_url"`
	// APIKey authenticates against Prowlarr; loaded only from the environment.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-search timeout applied to each category group.
	Timeout time.Duration `mapstructure:"timeout"`
	// RatePerSecond throttles search requests.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst"`
}

// DownloadClientConfig holds torrent client settings.
type DownloadClientConfig struct {
	// BaseURL is the download client address.
	BaseURL string `mapstructure:"base_url"`
	// Username and Password authenticate against the client. The password is
	// loaded only from the environment.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"-"`
	// Category tags submissions so the client can apply its own policies.
	Category string `mapstructure:"category"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// IndexerConfig holds per-indexer settings, including the seeding policy that
// governs deletion behavior.
type IndexerConfig struct {
	// ID is the indexer's ID in the aggregation service.
	ID int `mapstructure:"id"`
	// Name is the display name.
	Name string `mapstructure:"name"`
	// Protocol is the transfer protocol (torrent, usenet, direct).
	Protocol IndexerProtocol `mapstructure:"protocol"`
	// SeedingTimeMinutes is the required seeding duration for completed
	// torrents from this indexer. Zero means unlimited: downloads are never
	// removed from the client.
	SeedingTimeMinutes int `mapstructure:"seeding_time_minutes"`
	// Priority adds bonus points to candidates from this indexer.
	Priority int `mapstructure:"priority"`
	// Categories lists the indexer's category IDs for book searches.
	// Category IDs differ per indexer, which is why indexers are partitioned
	// into groups for searching.
	Categories []int `mapstructure:"categories"`
	// Group assigns the indexer to a category group searched independently.
	Group string `mapstructure:"group"`
}

// MatchingConfig holds library-match thresholds and weights.
type MatchingConfig struct {
	// Threshold is the minimum overall fuzzy score to accept a match.
	Threshold float64 `mapstructure:"threshold"`
	// TitleWeight and PersonWeight combine the fuzzy component scores.
	TitleWeight  float64 `mapstructure:"title_weight"`
	PersonWeight float64 `mapstructure:"person_weight"`
	// Region is the catalog region code selecting stop-word and character
	// replacement tables (us, uk, de, fr, es).
	Region string `mapstructure:"region"`
}

// RankingConfig holds candidate-ranking preferences.
type RankingConfig struct {
	// RequireAuthor hard-excludes releases with no author-token overlap.
	// Applied for automatic search; interactive search ignores it.
	RequireAuthor bool `mapstructure:"require_author"`
	// FormatScores overrides the default container format preference ladder.
	FormatScores map[string]float64 `mapstructure:"format_scores"`
	// TrustedGroups lists release groups granted a score bonus.
	TrustedGroups []string `mapstructure:"trusted_groups"`
	// TrustedGroupBonus is the points granted for a trusted release group.
	TrustedGroupBonus float64 `mapstructure:"trusted_group_bonus"`
}

// ApprovalConfig holds the request approval policy.
type ApprovalConfig struct {
	// AutoApproveRequests is the global default. True when unconfigured, for
	// backward compatibility with installs predating approval support.
	AutoApproveRequests bool `mapstructure:"auto_approve_requests"`
	// UserOverrides maps user IDs to a per-user auto-approve override that
	// takes precedence over the global default.
	UserOverrides map[string]bool `mapstructure:"user_overrides"`
}

// MediaConfig holds filesystem settings for the organized library.
type MediaConfig struct {
	// RootDir is the root of the organized {author}/{title} library tree.
	RootDir string `mapstructure:"root_dir"`
}

// CleanupConfig holds the periodic seeding-cleanup worker settings.
type CleanupConfig struct {
	// Interval is the delay between cleanup passes.
	Interval time.Duration `mapstructure:"interval"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SHELFARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shelfarr")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets loads credentials exclusively from environment variables.
// These fields use mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	if pw := os.Getenv("SHELFARR_DATABASE_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	if key := os.Getenv("SHELFARR_LIBRARY_API_KEY"); key != "" {
		cfg.Library.APIKey = key
	}
	if key := os.Getenv("SHELFARR_PROWLARR_API_KEY"); key != "" {
		cfg.Prowlarr.APIKey = key
	}
	if pw := os.Getenv("SHELFARR_DOWNLOAD_CLIENT_PASSWORD"); pw != "" {
		cfg.DownloadClient.Password = pw
	}
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8686)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shelfarr")
	v.SetDefault("database.name", "shelfarr")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "shelfarr.events")
	v.SetDefault("kafka.enabled", false)

	// Outbox defaults
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 5)

	// External client defaults
	v.SetDefault("library.timeout", "30s")
	v.SetDefault("prowlarr.timeout", "60s")
	v.SetDefault("prowlarr.rate_per_second", 2.0)
	v.SetDefault("prowlarr.burst", 4)
	v.SetDefault("download_client.timeout", "30s")
	v.SetDefault("download_client.category", "shelfarr")

	// Matching defaults
	v.SetDefault("matching.threshold", 0.70)
	v.SetDefault("matching.title_weight", 0.7)
	v.SetDefault("matching.person_weight", 0.3)
	v.SetDefault("matching.region", "us")

	// Ranking defaults
	v.SetDefault("ranking.require_author", true)
	v.SetDefault("ranking.trusted_group_bonus", 5.0)

	// Approval defaults: auto-approve when unconfigured, for backward
	// compatibility.
	v.SetDefault("approval.auto_approve_requests", true)

	// Media defaults
	v.SetDefault("media.root_dir", "/data/audiobooks")

	// Cleanup defaults
	v.SetDefault("cleanup.interval", "15m")
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold must be between 0 and 1, got %f", c.Matching.Threshold)
	}
	if c.Matching.TitleWeight+c.Matching.PersonWeight <= 0 {
		return fmt.Errorf("matching weights must sum to a positive value")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch_size must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox max_attempts must be positive")
	}

	seen := make(map[int]string, len(c.Indexers))
	for _, idx := range c.Indexers {
		if idx.Name == "" {
			return fmt.Errorf("indexer %d: name is required", idx.ID)
		}
		if prev, dup := seen[idx.ID]; dup {
			return fmt.Errorf("indexer %q: duplicate id %d (already used by %q)", idx.Name, idx.ID, prev)
		}
		seen[idx.ID] = idx.Name
		switch idx.Protocol {
		case ProtocolTorrent, ProtocolUsenet, ProtocolDirect:
		default:
			return fmt.Errorf("indexer %q: invalid protocol %q", idx.Name, idx.Protocol)
		}
		if idx.SeedingTimeMinutes < 0 {
			return fmt.Errorf("indexer %q: seeding_time_minutes cannot be negative", idx.Name)
		}
	}

	return nil
}

// IndexerByName returns the configuration for the named indexer, or nil if no
// such indexer is configured.
func (c *Config) IndexerByName(name string) *IndexerConfig {
	for i := range c.Indexers {
		if c.Indexers[i].Name == name {
			return &c.Indexers[i]
		}
	}
	return nil
}

// IndexerGroups partitions the configured indexers by category group. Indexers
// with no explicit group fall into the "default" group.
func (c *Config) IndexerGroups() map[string][]IndexerConfig {
	groups := make(map[string][]IndexerConfig)
	for _, idx := range c.Indexers {
		group := idx.Group
		if group == "" {
			group = "default"
		}
		groups[group] = append(groups[group], idx)
	}
	return groups
}
