// Package config loads client and server configuration from an optional TOML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Client holds configuration for the feed client.
type Client struct {
	// ServerURL is the feed backend base URL.
	ServerURL string `toml:"server_url"`

	// PushURL is the websocket push channel endpoint. When empty it is
	// derived from ServerURL.
	PushURL string `toml:"push_url"`

	// PageSize is the number of posts per feed page. This is the only place
	// the page size is configured; everything downstream reads it from here.
	PageSize int `toml:"page_size"`

	// Email and Password are the login credentials.
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// ChannelURL returns the push channel endpoint, deriving a ws:// URL from
// ServerURL when none is configured.
func (c *Client) ChannelURL() string {
	if c.PushURL != "" {
		return c.PushURL
	}
	u := c.ServerURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimRight(u, "/") + "/channel"
}

// LoadClient reads client configuration. Defaults are overlaid by the TOML
// file at path (when it exists) and then by FEEDSYNC_* environment variables.
func LoadClient(path string) (*Client, error) {
	cfg := &Client{
		ServerURL: "http://localhost:8080",
		PageSize:  10,
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		}
	}

	overrideString(&cfg.ServerURL, "FEEDSYNC_SERVER_URL")
	overrideString(&cfg.PushURL, "FEEDSYNC_PUSH_URL")
	overrideString(&cfg.Email, "FEEDSYNC_EMAIL")
	overrideString(&cfg.Password, "FEEDSYNC_PASSWORD")
	if err := overrideInt(&cfg.PageSize, "FEEDSYNC_PAGE_SIZE"); err != nil {
		return nil, err
	}

	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be at least 1, got %d", cfg.PageSize)
	}
	return cfg, nil
}

// Server holds configuration for the reference backend.
type Server struct {
	// Port is the HTTP server port.
	Port int `toml:"port"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `toml:"database_path"`

	// UploadsDir is where uploaded images are stored.
	UploadsDir string `toml:"uploads_dir"`

	// TokenSecret signs session tokens.
	TokenSecret string `toml:"token_secret"`

	// PageSize is the number of posts per feed page.
	PageSize int `toml:"page_size"`
}

// LoadServer reads server configuration the same way LoadClient does, with
// FEEDD_* environment variables.
func LoadServer(path string) (*Server, error) {
	cfg := &Server{
		Port:         8080,
		DatabasePath: "feedd.db",
		UploadsDir:   "uploads",
		PageSize:     10,
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		}
	}

	overrideString(&cfg.DatabasePath, "FEEDD_DATABASE_PATH")
	overrideString(&cfg.UploadsDir, "FEEDD_UPLOADS_DIR")
	overrideString(&cfg.TokenSecret, "FEEDD_TOKEN_SECRET")
	if err := overrideInt(&cfg.Port, "FEEDD_PORT"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.PageSize, "FEEDD_PAGE_SIZE"); err != nil {
		return nil, err
	}

	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token_secret is required (set FEEDD_TOKEN_SECRET)")
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be at least 1, got %d", cfg.PageSize)
	}
	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = parsed
	return nil
}
