package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/middleware"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:4221", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout())
}

const yamlConfig = `
server:
  host: 0.0.0.0
  port: 8080
  transport: evloop
  maxRequestsPerConn: 100
log:
  level: debug
  format: console
files:
  directory: /tmp/files
middleware:
  global:
    errorHandling: stop
    performanceMonitoring: true
  middlewares:
    cors:
      enabled: true
      priority: 15
      options:
        origin: ["https://a.example", "https://b.example"]
`

const tomlConfig = `
[server]
host = "0.0.0.0"
port = 8080
transport = "evloop"
maxRequestsPerConn = 100

[log]
level = "debug"
format = "console"

[files]
directory = "/tmp/files"

[middleware.global]
errorHandling = "stop"
performanceMonitoring = true

[middleware.middlewares.cors]
enabled = true
priority = 15

[middleware.middlewares.cors.options]
origin = ["https://a.example", "https://b.example"]
`

const jsonConfig = `{
  "server": {"host": "0.0.0.0", "port": 8080, "transport": "evloop", "maxRequestsPerConn": 100},
  "log": {"level": "debug", "format": "console"},
  "files": {"directory": "/tmp/files"},
  "middleware": {
    "global": {"errorHandling": "stop", "performanceMonitoring": true},
    "middlewares": {
      "cors": {"enabled": true, "priority": 15, "options": {"origin": ["https://a.example", "https://b.example"]}}
    }
  }
}`

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "riptide.yaml", yamlConfig},
		{"yml", "riptide.yml", yamlConfig},
		{"toml", "riptide.toml", tomlConfig},
		{"json", "riptide.json", jsonConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
			assert.Equal(t, TransportEvloop, cfg.Server.Transport)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "console", cfg.Log.Format)
			assert.Equal(t, "/tmp/files", cfg.Files.Directory)
			assert.Equal(t, 30000, cfg.Server.ShutdownTimeoutMs, "unset fields keep defaults")

			assert.Equal(t, middleware.PolicyStop, cfg.Middleware.Global.ErrorHandling)
			assert.True(t, cfg.Middleware.Global.PerformanceMonitoring)
			cors, ok := cfg.Middleware.Middlewares["cors"]
			require.True(t, ok)
			assert.True(t, cors.Enabled)
			require.NotNil(t, cors.Priority)
			assert.Equal(t, 15, *cors.Priority)
			assert.Len(t, cors.Options["origin"], 2)

			srv := cfg.Server.Server()
			assert.Equal(t, "0.0.0.0:8080", srv.Addr)
			assert.Equal(t, 100, srv.MaxKeepAliveRequests)
			assert.Equal(t, 60*time.Second, srv.IdleTimeout)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "riptide.ini", "port=1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "riptide.json", "{not json"))
	assert.Error(t, err)

	invalid := map[string]string{
		"port":      `{"server": {"port": 70000}}`,
		"transport": `{"server": {"transport": "threads"}}`,
		"level":     `{"log": {"level": "loud"}}`,
		"policy":    `{"middleware": {"global": {"errorHandling": "explode"}}}`,
		"group":     `{"middleware": {"middlewares": {"x": {"enabled": true, "group": "middle"}}}}`,
		"metrics":   `{"metrics": {"enabled": true, "addr": ""}}`,
	}
	for name, content := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "riptide.json", content))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
