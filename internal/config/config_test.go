package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `{
	"dbConn": "localhost:5432",
	"dbName": "storegate",
	"dbUser": "app",
	"dbPass": "pass",
	"adminKey": "admin-key",
	"shopifyClientId": "client-id",
	"shopifyClientSecret": "client-secret"
}`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:5173", cfg.ClientURL)
	assert.Equal(t, "http://localhost:3001", cfg.FrontendURL)
	assert.Equal(t, int32(10), cfg.MaxTenantConns)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"dbConn": "db:5432",
		"dbName": "storegate",
		"dbUser": "app",
		"dbPass": "pass",
		"listenAddr": ":8080",
		"adminKey": "admin-key",
		"shopifyClientId": "client-id",
		"shopifyClientSecret": "client-secret",
		"maxTenantConns": 4,
		"connectTimeoutSecs": 30
	}`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, int32(4), cfg.MaxTenantConns)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	_, err := Load(writeConfig(t, "{not json"))
	assert.Error(t, err)
}

func TestLoadRequiredFields(t *testing.T) {
	var full map[string]any
	require.NoError(t, json.Unmarshal([]byte(minimalConfig), &full))

	for field := range full {
		t.Run(field, func(t *testing.T) {
			partial := make(map[string]any, len(full))
			for k, v := range full {
				if k != field {
					partial[k] = v
				}
			}
			body, err := json.Marshal(partial)
			require.NoError(t, err)

			_, err = Load(writeConfig(t, string(body)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), field+" is required")
		})
	}
}

func TestConnString(t *testing.T) {
	cfg := &Config{DBConn: "db:5432", DBName: "storegate", DBUser: "app", DBPass: "p@ss/word"}
	assert.Equal(t,
		"postgres://app:p%40ss%2Fword@db:5432/storegate?sslmode=disable",
		cfg.ConnString())
}
