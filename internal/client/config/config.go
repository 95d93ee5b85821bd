package config

import "time"

// Config holds runtime settings for the TrialSync client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend HTTP endpoint.
//   - DatabasePath: SQLite file holding records, queue and drafts.
//   - SyncInterval: period of the background queue flush while online.
//
// Units: SyncInterval is a time.Duration (e.g., 30*time.Second).
type Config struct {
	ServerEndpointAddr string
	DatabasePath       string
	SyncInterval       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "trialsync.db"
	c.SyncInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
