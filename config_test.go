package notes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())
	assert.Equal(t, 1024, conf.KeyBits)
	assert.Equal(t, DriverBadger, conf.Store.Driver)
	assert.Equal(t, 5, conf.Store.MaxConnections)
	assert.Equal(t, 5*time.Second, conf.Store.AcquireTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
keyBits: 512
keygenTimeout: 2s
tokenLayout: contiguous
store:
  driver: postgres
  postgresDSN: postgres://u:p@localhost/notes
  acquireTimeout: 1s
log:
  format: json
`), 0o600))

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", conf.Listen)
	assert.Equal(t, 512, conf.KeyBits)
	assert.Equal(t, 2*time.Second, conf.KeygenTimeout)
	assert.Equal(t, "contiguous", conf.TokenLayout)
	assert.Equal(t, DriverPostgres, conf.Store.Driver)
	assert.Equal(t, time.Second, conf.Store.AcquireTimeout)
	assert.Equal(t, "json", conf.Log.Format)

	// untouched fields keep their defaults
	assert.Equal(t, 5, conf.Store.MaxConnections)
	assert.Equal(t, "info", conf.Log.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"NOTES_LISTEN":         "127.0.0.1:1234",
		"NOTES_STORE_DRIVER":   "postgres",
		"NOTES_KEY_BITS":       "64",
		"NOTES_KEYGEN_TIMEOUT": "1m",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	conf := DefaultConfig()
	require.NoError(t, conf.applyEnv(lookup))
	assert.Equal(t, "127.0.0.1:1234", conf.Listen)
	assert.Equal(t, DriverPostgres, conf.Store.Driver)
	assert.Equal(t, 64, conf.KeyBits)
	assert.Equal(t, time.Minute, conf.KeygenTimeout)

	env["NOTES_KEY_BITS"] = "many"
	assert.ErrorContains(t, conf.applyEnv(lookup), "NOTES_KEY_BITS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bits too small", func(c *Config) { c.KeyBits = 15 }, "at least 16"},
		{"unknown layout", func(c *Config) { c.TokenLayout = "sideways" }, "unknown token layout"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown store driver"},
		{"badger without path", func(c *Config) { c.Store.DataPath = "" }, "data path"},
		{"postgres without dsn", func(c *Config) {
			c.Store.Driver = DriverPostgres
			c.Store.PostgresDSN = ""
		}, "DSN"},
		{"in memory without path", func(c *Config) {
			c.Store.DataPath = ""
			c.Store.InMemory = true
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultConfig()
			tt.mutate(&conf)
			err := conf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
