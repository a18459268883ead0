package config

import "time"

// Config is the root configuration for a market-maker instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Venue    VenueConfig    `yaml:"venue"`
	Trading  TradingConfig  `yaml:"trading"`
	Feed     FeedConfig     `yaml:"feed"`
	State    StateConfig    `yaml:"state"`
	Audit    AuditConfig    `yaml:"audit"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenueConfig holds the venue endpoints.
type VenueConfig struct {
	WSURL      string        `yaml:"ws_url"`
	CatalogURL string        `yaml:"catalog_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// TradingConfig holds the pricing parameters.
type TradingConfig struct {
	Mode        string  `yaml:"mode"` // "paper" or "live"
	SpreadPct   float64 `yaml:"spread_pct"`
	MaxPosition float64 `yaml:"max_position"` // dollars
}

// FeedConfig holds the market-data transport settings.
type FeedConfig struct {
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	BufferSize           int           `yaml:"buffer_size"`
}

// StateConfig holds the persistence settings.
type StateConfig struct {
	File string `yaml:"file"`
}

// AuditConfig holds the session audit trail settings.
type AuditConfig struct {
	LogDir string `yaml:"log_dir"`
}

// ArchiveConfig holds the optional Postgres archive of fills and price
// updates. Disabled unless enabled is set and the database reachable.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig holds process log settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
