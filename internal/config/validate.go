package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Venue.WSURL, "ws://") && !strings.HasPrefix(c.Venue.WSURL, "wss://") {
		return fmt.Errorf("venue.ws_url must be a websocket URL, got %q", c.Venue.WSURL)
	}
	if !strings.HasPrefix(c.Venue.CatalogURL, "http://") && !strings.HasPrefix(c.Venue.CatalogURL, "https://") {
		return fmt.Errorf("venue.catalog_url must be an HTTP URL, got %q", c.Venue.CatalogURL)
	}

	switch c.Trading.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("trading.mode must be paper or live, got %q", c.Trading.Mode)
	}
	if c.Trading.SpreadPct <= 0 || c.Trading.SpreadPct >= 1 {
		return fmt.Errorf("trading.spread_pct must be in (0, 1), got %v", c.Trading.SpreadPct)
	}
	if c.Trading.MaxPosition <= 0 {
		return errors.New("trading.max_position must be positive")
	}

	if c.Feed.ReconnectMaxAttempts < 1 {
		return errors.New("feed.reconnect_max_attempts must be >= 1")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}
