package thunder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thunder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		path := writeConfig(t, `
host: 192.168.1.10
port: 9998
endpoint: /jsonrpc/v2
protocol: wss://
versions:
  default: 1
  Controller: 2
debug: true
dial_timeout: 2s
request_timeout: 15s
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "192.168.1.10", cfg.Host)
		assert.Equal(t, 9998, cfg.Port)
		assert.Equal(t, "/jsonrpc/v2", cfg.Endpoint)
		assert.Equal(t, "wss://", cfg.Protocol)
		assert.Equal(t, 2, cfg.Versions["Controller"])
		assert.True(t, cfg.Debug)
		assert.Equal(t, 2*time.Second, cfg.DialTimeout)
		assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("defaults applied", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "host: box\n"))
		require.NoError(t, err)

		assert.Equal(t, 80, cfg.Port)
		assert.Equal(t, "/jsonrpc", cfg.Endpoint)
		assert.Equal(t, "ws://", cfg.Protocol)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "host: [unterminated\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Host: "box"}, false},
		{"missing host", Config{}, true},
		{"port out of range", Config{Host: "box", Port: 70000}, true},
		{"zero version", Config{Host: "box", Versions: map[string]int{"Controller": 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Version(t *testing.T) {
	cfg := Config{Versions: map[string]int{"default": 3, "Controller": 2}}
	assert.Equal(t, 2, cfg.Version("Controller"))
	assert.Equal(t, 3, cfg.Version("DeviceInfo"))
	assert.Equal(t, 1, Config{}.Version("DeviceInfo"))

	assert.Equal(t, "Controller.2.activate", cfg.MethodName("Controller", "activate"))
	assert.Equal(t, "DeviceInfo.1.systeminfo", Config{}.MethodName("DeviceInfo", "systeminfo"))
}

func TestConfig_TransportConfig(t *testing.T) {
	cfg := Config{Host: "box", Port: 9998, Protocol: "wss"}
	cfg.ApplyDefaults()
	assert.Equal(t, "wss://box:9998/jsonrpc", cfg.transportConfig().URL())
}
