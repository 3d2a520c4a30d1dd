// Package config handles loading and validating the application
// configuration from a db.json file.
//
// The configuration file is expected to be a JSON object with database
// connection details, HTTP listen address, Shopify app credentials, and
// an admin key for the schema-management API.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds all application configuration loaded from db.json.
// The file is read once at startup; changes require a restart.
type Config struct {
	// DBConn is the PostgreSQL host:port (e.g., "infra-postgres:5432").
	DBConn string `json:"dbConn"`

	// DBName is the PostgreSQL database name.
	DBName string `json:"dbName"`

	// DBUser is the PostgreSQL username.
	DBUser string `json:"dbUser"`

	// DBPass is the PostgreSQL password.
	DBPass string `json:"dbPass"`

	// ListenAddr is the HTTP listen address (default ":3000").
	ListenAddr string `json:"listenAddr"`

	// AdminKey is a shared secret for authenticating schema-management
	// API calls. Clients send it as "Authorization: Bearer <adminKey>".
	AdminKey string `json:"adminKey"`

	// ShopifyClientID is the Shopify app's API key.
	ShopifyClientID string `json:"shopifyClientId"`

	// ShopifyClientSecret is the Shopify app's API secret. It signs the
	// installation handshake HMAC and the OAuth token exchange.
	ShopifyClientSecret string `json:"shopifyClientSecret"`

	// ClientURL is the frontend app origin used to build the OAuth
	// redirect URI (default "http://localhost:5173").
	ClientURL string `json:"clientUrl"`

	// FrontendURL is where merchants land after a completed
	// authorization (default "http://localhost:3001").
	FrontendURL string `json:"frontendUrl"`

	// MaxTenantConns bounds each per-tenant connection pool (default 10).
	MaxTenantConns int32 `json:"maxTenantConns"`

	// ConnectTimeoutSecs bounds tenant pool initialization and DDL
	// execution so one unreachable schema cannot stall other tenants
	// (default 10).
	ConnectTimeoutSecs int `json:"connectTimeoutSecs"`
}

// Load reads and parses configuration from the given file path.
// It returns an error if the file cannot be read, parsed, or is missing
// required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if cfg.ClientURL == "" {
		cfg.ClientURL = "http://localhost:5173"
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3001"
	}
	if cfg.MaxTenantConns <= 0 {
		cfg.MaxTenantConns = 10
	}
	if cfg.ConnectTimeoutSecs <= 0 {
		cfg.ConnectTimeoutSecs = 10
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch {
	case c.DBConn == "":
		return fmt.Errorf("config: dbConn is required")
	case c.DBName == "":
		return fmt.Errorf("config: dbName is required")
	case c.DBUser == "":
		return fmt.Errorf("config: dbUser is required")
	case c.DBPass == "":
		return fmt.Errorf("config: dbPass is required")
	case c.AdminKey == "":
		return fmt.Errorf("config: adminKey is required")
	case c.ShopifyClientID == "":
		return fmt.Errorf("config: shopifyClientId is required")
	case c.ShopifyClientSecret == "":
		return fmt.Errorf("config: shopifyClientSecret is required")
	}
	return nil
}

// ConnString builds a PostgreSQL connection URI from the config fields.
// The password is URL-encoded to handle special characters safely.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPass),
		c.DBConn,
		url.QueryEscape(c.DBName),
	)
}

// ConnectTimeout returns the configured tenant connect/DDL deadline.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}
