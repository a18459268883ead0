package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultWSURL      = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultCatalogURL = "https://gamma-api.polymarket.com"

	DefaultAPITimeout = 30 * time.Second
	DefaultMaxRetries = 3

	DefaultMode        = "paper"
	DefaultSpreadPct   = 0.02
	DefaultMaxPosition = 1000.0

	DefaultReconnectMaxAttempts = 5
	DefaultReconnectBackoff     = 2 * time.Second
	DefaultFeedBufferSize       = 10000

	DefaultStateFile = "./state.json"
	DefaultLogDir    = "./logs"

	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultBatchSize     = 500
	DefaultFlushInterval = 1 * time.Second
	DefaultArchiveBuffer = 10000

	DefaultLogLevel   = "info"
	DefaultLogFile    = "logs/polymaker.log"
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 28
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	if c.Venue.WSURL == "" {
		c.Venue.WSURL = DefaultWSURL
	}
	if c.Venue.CatalogURL == "" {
		c.Venue.CatalogURL = DefaultCatalogURL
	}
	if c.Venue.Timeout == 0 {
		c.Venue.Timeout = DefaultAPITimeout
	}
	if c.Venue.MaxRetries == 0 {
		c.Venue.MaxRetries = DefaultMaxRetries
	}

	if c.Trading.Mode == "" {
		c.Trading.Mode = DefaultMode
	}
	if c.Trading.SpreadPct == 0 {
		c.Trading.SpreadPct = DefaultSpreadPct
	}
	if c.Trading.MaxPosition == 0 {
		c.Trading.MaxPosition = DefaultMaxPosition
	}

	if c.Feed.ReconnectMaxAttempts == 0 {
		c.Feed.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.Feed.ReconnectBackoff == 0 {
		c.Feed.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	if c.State.File == "" {
		c.State.File = DefaultStateFile
	}
	if c.Audit.LogDir == "" {
		c.Audit.LogDir = DefaultLogDir
	}

	if c.Archive.Enabled {
		if c.Archive.Database.Port == 0 {
			c.Archive.Database.Port = DefaultDBPort
		}
		if c.Archive.Database.SSLMode == "" {
			c.Archive.Database.SSLMode = DefaultDBSSLMode
		}
		if c.Archive.Database.MaxConns == 0 {
			c.Archive.Database.MaxConns = DefaultMaxConns
		}
		if c.Archive.Database.MinConns == 0 {
			c.Archive.Database.MinConns = DefaultMinConns
		}
		if c.Archive.BatchSize == 0 {
			c.Archive.BatchSize = DefaultBatchSize
		}
		if c.Archive.FlushInterval == 0 {
			c.Archive.FlushInterval = DefaultFlushInterval
		}
		if c.Archive.BufferSize == 0 {
			c.Archive.BufferSize = DefaultArchiveBuffer
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultMaxAgeDays
	}
}
