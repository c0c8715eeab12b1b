package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
}

// FeedConfig holds the feed generation settings
type FeedConfig struct {
	DefaultPageSize int           `toml:"default_page_size"`
	MaxPageSize     int           `toml:"max_page_size"`
	FetchTimeout    time.Duration `toml:"fetch_timeout"`
	UserContextTTL  time.Duration `toml:"user_context_ttl"`
	// Languages used to key plain string titles and descriptions
	Languages []string `toml:"languages"`
}

// LiveConfig controls how new posts are discovered and pushed
type LiveConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
	BatchSize    int           `toml:"batch_size"`
}

// ClientConfig holds the settings of the feed consumer
type ClientConfig struct {
	ServerURL      string        `toml:"server_url"`
	FlushInterval  time.Duration `toml:"flush_interval"`
	MaxPendingAdds int           `toml:"max_pending_adds"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RefreshEvery   time.Duration `toml:"refresh_every"`
}

// Config represents the top-level configuration
type Config struct {
	Server ServerConfig `toml:"server"`
	Feed   FeedConfig   `toml:"feed"`
	Live   LiveConfig   `toml:"live"`
	Client ClientConfig `toml:"client"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Hostname: "localhost",
			Port:     3000,
			Database: "feed.db",
		},
		Feed: FeedConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			FetchTimeout:    5 * time.Second,
			UserContextTTL:  30 * time.Second,
			Languages:       []string{"en", "hi", "ta", "te", "mr", "bn", "gu", "pa"},
		},
		Live: LiveConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    50,
		},
		Client: ClientConfig{
			ServerURL:      "http://localhost:3000",
			FlushInterval:  1500 * time.Millisecond,
			MaxPendingAdds: 50,
			RequestTimeout: 10 * time.Second,
			RefreshEvery:   time.Minute,
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would break the server or client at runtime
func (c *Config) Validate() error {
	if c.Feed.MaxPageSize < 1 {
		return fmt.Errorf("feed.max_page_size must be at least 1")
	}
	if c.Feed.DefaultPageSize < 1 || c.Feed.DefaultPageSize > c.Feed.MaxPageSize {
		return fmt.Errorf("feed.default_page_size must be between 1 and %d", c.Feed.MaxPageSize)
	}
	if c.Feed.FetchTimeout <= 0 {
		return fmt.Errorf("feed.fetch_timeout must be positive")
	}
	if c.Live.PollInterval <= 0 {
		return fmt.Errorf("live.poll_interval must be positive")
	}
	if c.Live.BatchSize < 1 {
		return fmt.Errorf("live.batch_size must be at least 1")
	}
	if c.Client.FlushInterval <= 0 {
		return fmt.Errorf("client.flush_interval must be positive")
	}
	if c.Client.MaxPendingAdds < 1 {
		return fmt.Errorf("client.max_pending_adds must be at least 1")
	}
	return nil
}

// Save writes the configuration as TOML
func Save(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
