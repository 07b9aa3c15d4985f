// Package config loads client settings from config.yaml, DCJ_* environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "DCJ"
	envConfigDir   = "DCJ_CONFIG_DIR"
	configName     = "config"
	configType     = "yaml"
	DefaultAPIURL  = "http://localhost:8787/api/v1"
	DefaultTimeout = 15 * time.Second
	DefaultPage    = 100
)

// Keys.
const (
	KeyAPIURL       = "api.url"
	KeyAPIToken     = "api.token"
	KeyAPITimeout   = "api.timeout"
	KeyDataDir      = "data.dir"
	KeyPageSize     = "records.page_size"
	KeyLogLevel     = "log.level"
	KeyOutputFormat = "output.format"
)

type API struct {
	URL     string        `json:"url" yaml:"url"`
	Token   string        `json:"-" yaml:"-"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type Config struct {
	API          API    `json:"api" yaml:"api"`
	DataDir      string `json:"dataDir" yaml:"dataDir"`
	PageSize     int    `json:"pageSize" yaml:"pageSize"`
	LogLevel     string `json:"logLevel" yaml:"logLevel"`
	OutputFormat string `json:"outputFormat" yaml:"outputFormat"`
	// File is the config file that was read, or "" when none was found.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Dir returns the config directory: $DCJ_CONFIG_DIR, else ~/.config/dcj.
func Dir() (string, error) {
	if d := strings.TrimSpace(os.Getenv(envConfigDir)); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dcj"), nil
}

// New returns a viper instance with defaults, env binding and the config
// search path set. Callers bind flags onto it before calling Load.
func New() (*viper.Viper, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)

	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyAPIToken, "")
	v.SetDefault(KeyAPITimeout, DefaultTimeout)
	v.SetDefault(KeyDataDir, dir)
	v.SetDefault(KeyPageSize, DefaultPage)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyOutputFormat, "json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DCJ_TOKEN is the short form people actually type.
	if err := v.BindEnv(KeyAPIToken, "DCJ_API_TOKEN", "DCJ_TOKEN"); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads the config file (a missing file is fine) and resolves every key.
func Load(v *viper.Viper) (Config, error) {
	var file string
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		file = v.ConfigFileUsed()
	}

	cfg := Config{
		API: API{
			URL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIURL)), "/"),
			Token:   strings.TrimSpace(v.GetString(KeyAPIToken)),
			Timeout: v.GetDuration(KeyAPITimeout),
		},
		DataDir:      strings.TrimSpace(v.GetString(KeyDataDir)),
		PageSize:     v.GetInt(KeyPageSize),
		LogLevel:     strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		OutputFormat: strings.ToLower(strings.TrimSpace(v.GetString(KeyOutputFormat))),
		File:         file,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: want an http(s) URL", KeyAPIURL, c.API.URL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid %s %s: must be positive", KeyAPITimeout, c.API.Timeout)
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("invalid %s %d: want 1..1000", KeyPageSize, c.PageSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.OutputFormat {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("invalid %s %q: want json or yaml", KeyOutputFormat, c.OutputFormat)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid %s %q: want debug, info, warn or error", KeyLogLevel, s)
}
