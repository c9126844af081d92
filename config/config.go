// Package config loads the suite settings from api-test.yaml, an optional
// .env file and CONDUIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up by Locate.
const FileName = "api-test.yaml"

// Mode selects where the Conduit backend comes from.
type Mode string

const (
	ModeRemote    Mode = "remote"    // an already running deployment at api_url
	ModeStub      Mode = "stub"      // the in-process conduittest server
	ModeContainer Mode = "container" // conduit.image started with testcontainers
)

// Config is the resolved configuration for one environment.
type Config struct {
	Env               string
	APIURL            string
	WebURL            string
	UserEmail         string
	UserPassword      string
	SchemaDir         string
	LogLevel          string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	Conduit           ConduitConfig
	UI                UIConfig
}

type ConduitConfig struct {
	Mode  Mode
	Image string
	Port  int
}

type UIConfig struct {
	Headless bool
}

// yamlSettings is decoded once for defaults and again for the selected
// environment, so the overlay only replaces the keys it names.
type yamlSettings struct {
	APIURL            string        `yaml:"api_url"`
	WebURL            string        `yaml:"web_url"`
	UserEmail         string        `yaml:"user_email"`
	UserPassword      string        `yaml:"user_password"`
	SchemaDir         string        `yaml:"schema_dir"`
	LogLevel          string        `yaml:"log_level"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	Conduit           struct {
		Mode  string `yaml:"mode"`
		Image string `yaml:"image"`
		Port  int    `yaml:"port"`
	} `yaml:"conduit"`
	UI struct {
		Headless *bool `yaml:"headless"`
	} `yaml:"ui"`
}

type yamlFile struct {
	Defaults     yaml.Node            `yaml:"defaults"`
	Environments map[string]yaml.Node `yaml:"environments"`
}

// Load reads path for the environment named by TEST_ENV (default "test").
// A .env file next to path is loaded first without overriding variables
// that are already set.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
	}

	env := os.Getenv("TEST_ENV")
	if env == "" {
		env = "test"
	}
	logger.Debug("Loading configuration", zap.String("path", path), zap.String("env", env))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var raw yamlSettings
	if !file.Defaults.IsZero() {
		if err := file.Defaults.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse defaults: %w", err)
		}
	}
	if overlay, ok := file.Environments[env]; ok {
		if err := overlay.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse environment %q: %w", env, err)
		}
	} else if len(file.Environments) > 0 {
		logger.Warn("No overlay for environment, using defaults", zap.String("env", env))
	}

	cfg := &Config{
		Env:               env,
		APIURL:            raw.APIURL,
		WebURL:            raw.WebURL,
		UserEmail:         raw.UserEmail,
		UserPassword:      raw.UserPassword,
		SchemaDir:         raw.SchemaDir,
		LogLevel:          raw.LogLevel,
		RequestsPerSecond: raw.RequestsPerSecond,
		RequestTimeout:    raw.RequestTimeout,
		Conduit: ConduitConfig{
			Mode:  Mode(strings.ToLower(raw.Conduit.Mode)),
			Image: raw.Conduit.Image,
			Port:  raw.Conduit.Port,
		},
		UI: UIConfig{Headless: true},
	}
	if raw.UI.Headless != nil {
		cfg.UI.Headless = *raw.UI.Headless
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for name, field := range map[string]*string{
		"CONDUIT_API_URL":       &c.APIURL,
		"CONDUIT_WEB_URL":       &c.WebURL,
		"CONDUIT_USER_EMAIL":    &c.UserEmail,
		"CONDUIT_USER_PASSWORD": &c.UserPassword,
	} {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}
	if v, ok := os.LookupEnv("CONDUIT_MODE"); ok {
		c.Conduit.Mode = Mode(strings.ToLower(v))
	}
}

func (c *Config) applyDefaults() {
	if c.Conduit.Mode == "" {
		c.Conduit.Mode = ModeRemote
	}
	if c.SchemaDir == "" {
		c.SchemaDir = "responseSchemas"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Conduit.Port == 0 {
		c.Conduit.Port = 3000
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	c.WebURL = strings.TrimRight(c.WebURL, "/")
}

// Validate reports the first setting that cannot work for the chosen mode.
func (c *Config) Validate() error {
	switch c.Conduit.Mode {
	case ModeRemote:
		if c.APIURL == "" {
			return errors.New("api_url is required in remote mode")
		}
	case ModeStub:
	case ModeContainer:
		if c.Conduit.Image == "" {
			return errors.New("conduit.image is required in container mode")
		}
	default:
		return fmt.Errorf("unknown conduit mode %q", c.Conduit.Mode)
	}
	if c.Conduit.Mode != ModeStub && (c.UserEmail == "" || c.UserPassword == "") {
		return fmt.Errorf("user_email and user_password are required in %s mode", c.Conduit.Mode)
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("requests_per_second must not be negative")
	}
	return nil
}

// ParseLevel maps LogLevel onto a zap level, falling back to info.
func (c *Config) ParseLevel() zap.AtomicLevel {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// Locate returns CONDUIT_CONFIG when set, otherwise the nearest FileName in
// dir or one of its parents.
func Locate(dir string) (string, error) {
	if p := os.Getenv("CONDUIT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
