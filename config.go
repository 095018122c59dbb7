package notes

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/i5heu/ouroboros-notes/pkg/logging"
	"github.com/i5heu/ouroboros-notes/pkg/store"
	"github.com/i5heu/ouroboros-notes/pkg/token"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Config configures the notes service. Zero values are replaced by the
// defaults of DefaultConfig when loaded through LoadConfig.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// KeyBits is the size of each of the two primes of an issued key.
	KeyBits int `yaml:"keyBits"`
	// KeygenTimeout bounds a single key generation including queueing.
	KeygenTimeout time.Duration `yaml:"keygenTimeout"`
	// KeygenWorkers is the number of goroutines generating keys.
	KeygenWorkers int `yaml:"keygenWorkers"`
	// TokenLayout is "reference" or "contiguous".
	TokenLayout string `yaml:"tokenLayout"`

	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`

	// Logger overrides Log when set.
	Logger *logrus.Logger `yaml:"-"`
	// Backend overrides Store when set. The service does not close it.
	Backend store.Store `yaml:"-"`
	// Rand is the randomness for keys and padding. Defaults to crypto/rand.
	Rand io.Reader `yaml:"-"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`

	// badger
	DataPath      string        `yaml:"dataPath"`
	InMemory      bool          `yaml:"inMemory"`
	MinimumFreeGB int           `yaml:"minimumFreeGB"`
	GCInterval    time.Duration `yaml:"gcInterval"`

	// postgres
	PostgresDSN    string        `yaml:"postgresDSN"`
	MaxConnections int           `yaml:"maxConnections"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		Listen:        ":8080",
		KeyBits:       1024,
		KeygenTimeout: 30 * time.Second,
		KeygenWorkers: runtime.NumCPU(),
		TokenLayout:   token.LayoutReference.String(),
		Store: StoreConfig{
			Driver:         DriverBadger,
			DataPath:       "./data",
			GCInterval:     10 * time.Minute,
			PostgresDSN:    "postgres://postgres:password@db/postgres?sslmode=disable",
			MaxConnections: 5,
			AcquireTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and applies
// NOTES_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return config, config.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"NOTES_LISTEN":       &c.Listen,
		"NOTES_TOKEN_LAYOUT": &c.TokenLayout,
		"NOTES_STORE_DRIVER": &c.Store.Driver,
		"NOTES_DATA_PATH":    &c.Store.DataPath,
		"NOTES_POSTGRES_DSN": &c.Store.PostgresDSN,
		"NOTES_LOG_LEVEL":    &c.Log.Level,
		"NOTES_LOG_FORMAT":   &c.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("NOTES_KEY_BITS"); ok {
		bits, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NOTES_KEY_BITS: %w", err)
		}
		c.KeyBits = bits
	}
	if v, ok := lookup("NOTES_KEYGEN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOTES_KEYGEN_TIMEOUT: %w", err)
		}
		c.KeygenTimeout = d
	}
	return nil
}

// Validate reports settings the service cannot run with.
func (c Config) Validate() error {
	if c.KeyBits < 16 {
		return fmt.Errorf("key bits must be at least 16, got %d", c.KeyBits)
	}
	if _, err := token.ParseLayout(c.TokenLayout); err != nil {
		return err
	}
	if c.Backend != nil {
		return nil
	}
	switch c.Store.Driver {
	case DriverBadger:
		if !c.Store.InMemory && c.Store.DataPath == "" {
			return fmt.Errorf("badger store needs a data path")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store needs a DSN")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
