// Package config loads run settings from an optional YAML file and the
// environment. Environment values override the file; CLI flags override both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	MaxRounds int    `yaml:"maxRounds"`
	LogLevel  string `yaml:"logLevel"`
	// Database is the SQLite file. Empty disables persistence.
	Database    string              `yaml:"database"`
	Pipeline    Pipeline            `yaml:"pipeline"`
	Resolvers   Resolvers           `yaml:"resolvers"`
	Exclusivity map[string][]string `yaml:"exclusivity"`
}

type Pipeline struct {
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"maxRetries"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RateLimitRPS   float64       `yaml:"rateLimitRPS"`
	FailFast       bool          `yaml:"failFast"`
}

// Toggle is shared by every resolver section. Priority 0 keeps the
// resolver's default.
type Toggle struct {
	Disabled bool `yaml:"disabled"`
	Priority int  `yaml:"priority"`
}

type Gemini struct {
	Toggle       `yaml:",inline"`
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"baseURL"`
	RateLimitRPS float64 `yaml:"rateLimitRPS"`
	// APIKey only comes from the environment.
	APIKey string `yaml:"-"`
}

type GitHub struct {
	Toggle  `yaml:",inline"`
	BaseURL string `yaml:"baseURL"`
	Token   string `yaml:"-"`
}

type Unavatar struct {
	Toggle  `yaml:",inline"`
	BaseURL string `yaml:"baseURL"`
}

type Resolvers struct {
	Gemini      Gemini   `yaml:"gemini"`
	GitHub      GitHub   `yaml:"github"`
	Unavatar    Unavatar `yaml:"unavatar"`
	CountryCode Toggle   `yaml:"countryCode"`
}

// Default returns the settings used when neither file nor environment say
// otherwise.
func Default() Config {
	return Config{
		MaxRounds: 5,
		LogLevel:  "info",
		Pipeline: Pipeline{
			Workers:        4,
			MaxRetries:     2,
			RequestTimeout: 2 * time.Minute,
		},
		Resolvers: Resolvers{
			Gemini: Gemini{Model: "gemini-2.5-flash"},
		},
		Exclusivity: map[string][]string{
			"github": {"unavatar"},
		},
	}
}

// Load reads path over the defaults, then applies the process environment.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML into cfg, keeping values the document does not set.
// Unknown keys are rejected.
func Parse(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides cfg from lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}
	c.Pipeline.Workers = env.intVar("WORKERS", c.Pipeline.Workers)
	c.Pipeline.MaxRetries = env.intVar("MAX_RETRIES", c.Pipeline.MaxRetries)
	c.Pipeline.RequestTimeout = env.durationVar("REQUEST_TIMEOUT", c.Pipeline.RequestTimeout)
	c.Pipeline.RateLimitRPS = env.floatVar("RATE_LIMIT_RPS", c.Pipeline.RateLimitRPS)
	c.Pipeline.FailFast = env.boolVar("FAIL_FAST", c.Pipeline.FailFast)
	c.MaxRounds = env.intVar("MAX_ROUNDS", c.MaxRounds)
	c.LogLevel = env.stringVar("LOG_LEVEL", c.LogLevel)
	c.Database = env.stringVar("ENRICH_DB", c.Database)
	c.Resolvers.Gemini.APIKey = env.stringVar("GEMINI_API_KEY", c.Resolvers.Gemini.APIKey)
	c.Resolvers.Gemini.Model = env.stringVar("GEMINI_MODEL", c.Resolvers.Gemini.Model)
	c.Resolvers.Gemini.BaseURL = env.stringVar("GEMINI_BASE_URL", c.Resolvers.Gemini.BaseURL)
	c.Resolvers.GitHub.Token = env.stringVar("GITHUB_TOKEN", c.Resolvers.GitHub.Token)
	return env.err
}

// Validate checks ranges and the exclusivity graph.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("maxRounds must be positive, got %d", c.MaxRounds))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("maxRetries must not be negative, got %d", c.Pipeline.MaxRetries))
	}
	if c.Pipeline.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("requestTimeout must be positive, got %s", c.Pipeline.RequestTimeout))
	}
	for leader, blocked := range c.Exclusivity {
		if strings.TrimSpace(leader) == "" {
			errs = append(errs, errors.New("exclusivity leader must not be empty"))
		}
		for _, b := range blocked {
			if b == leader {
				errs = append(errs, fmt.Errorf("exclusivity: %s blocks itself", leader))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// envReader collects the first parse failure so callers can read all
// variables in sequence.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) raw(name string) (string, bool) {
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: invalid %s=%q: %v", ErrInvalidConfig, name, v, err)
	}
}

func (e *envReader) stringVar(name, fallback string) string {
	if v, ok := e.raw(name); ok {
		return v
	}
	return fallback
}

func (e *envReader) intVar(name string, fallback int) int {
	v, ok := e.raw(name)
	if !ok {
		return fallback
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return out
}

func (e *envReader) floatVar(name string, fallback float64) float64 {
	v, ok := e.raw(name)
	if !ok {
		return fallback
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return out
}

func (e *envReader) durationVar(name string, fallback time.Duration) time.Duration {
	v, ok := e.raw(name)
	if !ok {
		return fallback
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return out
}

func (e *envReader) boolVar(name string, fallback bool) bool {
	v, ok := e.raw(name)
	if !ok {
		return fallback
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return fallback
	}
	return out
}
