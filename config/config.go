package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/charmbracelet/log"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pevans/wfleet/cover"
	"github.com/pevans/wfleet/sink"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "wfleet.yaml"

// DefaultMaxRetries applies when neither the file nor the environment sets
// http.max_retries. Zero is a valid setting, so it has no env-default.
const DefaultMaxRetries = 5

const maxRetriesEnv = "WFLEET_HTTP_MAX_RETRIES"

// Custom errors for configuration
var (
	ErrInvalidWorkers   = errors.New("scrape.workers must be at least 1")
	ErrInvalidLimit     = errors.New("scrape.request_limit must not be negative")
	ErrInvalidRetries   = errors.New("http.max_retries must not be negative")
	ErrInvalidTimeout   = errors.New("http.timeout must be positive")
	ErrEmptySource      = errors.New("scrape.source is empty")
	ErrEmptyCacheDir    = errors.New("cache_dir is empty")
	ErrInvalidLogLevel  = errors.New("invalid log_level")
	ErrInvalidRetryWait = errors.New("http.retry_max_wait must not be below http.retry_wait")
)

// Config is the complete wfleet configuration. Values come from the YAML
// file, then WFLEET_* environment variables, then the defaults below.
type Config struct {
	CacheDir    string `yaml:"cache_dir" env:"WFLEET_CACHE_DIR" env-default:".wfleet/cache"`
	RunsDB      string `yaml:"runs_db" env:"WFLEET_RUNS_DB" env-default:".wfleet/runs.db"`
	SourcesFile string `yaml:"sources_file,omitempty" env:"WFLEET_SOURCES_FILE"`
	LogLevel    string `yaml:"log_level" env:"WFLEET_LOG_LEVEL" env-default:"info"`

	Output OutputConfig `yaml:"output"`
	Scrape ScrapeConfig `yaml:"scrape"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// OutputConfig selects the sink and the output file name inside the run's
// cache directory. The extension comes from the format.
type OutputConfig struct {
	Format   string `yaml:"format" env:"WFLEET_OUTPUT_FORMAT" env-default:"xlsx"`
	FileName string `yaml:"file_name" env:"WFLEET_OUTPUT_FILE_NAME" env-default:"base_ships_data"`
}

// ScrapeConfig controls the keyspace search.
type ScrapeConfig struct {
	Source       string `yaml:"source" env:"WFLEET_SOURCE" env-default:"rsclass"`
	Workers      int    `yaml:"workers" env:"WFLEET_WORKERS" env-default:"30"`
	Sequential   bool   `yaml:"sequential" env:"WFLEET_SEQUENTIAL"`
	RequestLimit int    `yaml:"request_limit" env:"WFLEET_REQUEST_LIMIT"`
	ArchiveRaw   bool   `yaml:"archive_raw" env:"WFLEET_ARCHIVE_RAW"`
	// Empty letters or separators fall back to the default alphabet.
	Letters    string `yaml:"letters,omitempty" env:"WFLEET_LETTERS"`
	Separators string `yaml:"separators,omitempty" env:"WFLEET_SEPARATORS"`
}

// HTTPConfig controls the registry HTTP client.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" env:"WFLEET_HTTP_TIMEOUT" env-default:"12h"`
	MaxRetries   int           `yaml:"max_retries" env:"WFLEET_HTTP_MAX_RETRIES"`
	RetryWait    time.Duration `yaml:"retry_wait" env:"WFLEET_HTTP_RETRY_WAIT" env-default:"500ms"`
	RetryMaxWait time.Duration `yaml:"retry_max_wait" env:"WFLEET_HTTP_RETRY_MAX_WAIT" env-default:"30s"`
	FailOnError  bool          `yaml:"fail_on_error" env:"WFLEET_HTTP_FAIL_ON_ERROR"`
	UserAgent    string        `yaml:"user_agent,omitempty" env:"WFLEET_HTTP_USER_AGENT"`
}

// Load reads the configuration from path. A missing file is not an error:
// defaults and environment variables are used instead.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			setRetries, err := fileSetsMaxRetries(path)
			if err != nil {
				return nil, err
			}
			if !setRetries {
				cfg.defaultMaxRetries()
			}
			return &cfg, nil
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	cfg.defaultMaxRetries()
	return &cfg, nil
}

// defaultMaxRetries sets DefaultMaxRetries unless the environment set it.
func (c *Config) defaultMaxRetries() {
	if _, ok := os.LookupEnv(maxRetriesEnv); !ok {
		c.HTTP.MaxRetries = DefaultMaxRetries
	}
}

// fileSetsMaxRetries reports whether the YAML file has an explicit
// http.max_retries key.
func fileSetsMaxRetries(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	var keys struct {
		HTTP struct {
			MaxRetries *int `yaml:"max_retries"`
		} `yaml:"http"`
	}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return false, fmt.Errorf("failed to parse config file: %w", err)
	}
	return keys.HTTP.MaxRetries != nil, nil
}

// Apply overlays every non-zero field of overrides onto the config.
func (c *Config) Apply(overrides Config) error {
	if err := mergo.Merge(c, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration before any work starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return ErrEmptyCacheDir
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if _, _, err := sink.ForFormat(c.Output.Format); err != nil {
		return err
	}
	if strings.TrimSpace(c.Scrape.Source) == "" {
		return ErrEmptySource
	}
	// Sequential runs ignore the worker count
	if c.Workers() < 1 {
		return ErrInvalidWorkers
	}
	if c.Scrape.RequestLimit < 0 {
		return ErrInvalidLimit
	}
	if err := c.Alphabet().Validate(); err != nil {
		return fmt.Errorf("invalid alphabet: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.HTTP.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.HTTP.RetryMaxWait < c.HTTP.RetryWait {
		return ErrInvalidRetryWait
	}
	return nil
}

// Workers returns the effective worker count.
func (c *Config) Workers() int {
	if c.Scrape.Sequential {
		return 1
	}
	return c.Scrape.Workers
}

// Alphabet returns the query alphabet, using the default for empty parts.
func (c *Config) Alphabet() cover.Alphabet {
	alphabet := cover.DefaultAlphabet()
	if c.Scrape.Letters != "" {
		alphabet.Letters = c.Scrape.Letters
	}
	if c.Scrape.Separators != "" {
		alphabet.Separators = c.Scrape.Separators
	}
	return alphabet
}

// Level returns the parsed log level, info when unparseable.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
