// Package config handles configuration for the FloatNote client, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the FloatNote client.
//
// Fields:
//   - RemoteDSN: PostgreSQL DSN of the shared remote store (pgx). An empty
//     or unreachable DSN degrades the application to local-only mode.
//   - DataDir: directory for per-user local cache and settings files. Empty
//     means "use the platform application data directory".
//   - ConnectTimeout: deadline for the initial remote connectivity probe.
//   - OnlineCheckInterval: how often the client probes remote reachability.
type Config struct {
	RemoteDSN           string
	DataDir             string
	ConnectTimeout      time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RemoteDSN = ""
	c.DataDir = ""
	c.ConnectTimeout = 5 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
