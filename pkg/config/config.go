package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

type Config struct {
	DBPath     string           `toml:"db_path"`
	Debug      bool             `toml:"debug"`
	Server     ServerConfig     `toml:"server"`
	Search     SearchConfig     `toml:"search"`
	Export     ExportConfig     `toml:"export"`
	Classifier ClassifierConfig `toml:"classifier"`
	Index      IndexConfig      `toml:"index"`
}

type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type SearchConfig struct {
	DefaultSize  int `toml:"default_size"`
	MaxSize      int `toml:"max_size"`
	FacetSize    int `toml:"facet_size"`
	MaxFacetSize int `toml:"max_facet_size"`
}

type ExportConfig struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
}

type ClassifierConfig struct {
	SampleSize        int      `toml:"sample_size"`
	FreeTextMinLength int      `toml:"free_text_min_length"`
	Levels            []string `toml:"levels"`
	DefaultLevel      string   `toml:"default_level"`
}

type IndexConfig struct {
	// AutoIndex builds a full-text index for every table with free-text
	// columns right after a database is activated.
	AutoIndex bool `toml:"auto_index"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Addr returns the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout = Duration{30 * time.Second}
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout = Duration{2 * time.Minute}
	}
	if c.Search.DefaultSize <= 0 {
		c.Search.DefaultSize = 10
	}
	if c.Search.MaxSize <= 0 {
		c.Search.MaxSize = 10000
	}
	if c.Search.FacetSize <= 0 {
		c.Search.FacetSize = 10
	}
	if c.Search.MaxFacetSize <= 0 {
		c.Search.MaxFacetSize = 100
	}
	if c.Export.DefaultLimit <= 0 {
		c.Export.DefaultLimit = 10000
	}
	if c.Export.MaxLimit <= 0 {
		c.Export.MaxLimit = 50000
	}
	if c.Classifier.SampleSize <= 0 {
		c.Classifier.SampleSize = 100
	}
	if c.Classifier.FreeTextMinLength <= 0 {
		c.Classifier.FreeTextMinLength = 50
	}
	if c.Classifier.DefaultLevel == "" {
		c.Classifier.DefaultLevel = "UNCLASSIFIED"
	}
}

// applyEnv honours the deployment variables DB_PATH, API_HOST and API_PORT.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("API_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing API_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// LoadConfig reads configPath, falling back to defaults when the file does
// not exist. Environment overrides are applied last.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DBPath != "" {
		config.DBPath = expandHome(config.DBPath)
	}
	return &config, nil
}

// Validate checks value ranges that defaults cannot fix.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Search.DefaultSize > c.Search.MaxSize {
		return fmt.Errorf("search.default_size (%d) exceeds search.max_size (%d)", c.Search.DefaultSize, c.Search.MaxSize)
	}
	if c.Export.DefaultLimit > c.Export.MaxLimit {
		return fmt.Errorf("export.default_limit (%d) exceeds export.max_limit (%d)", c.Export.DefaultLimit, c.Export.MaxLimit)
	}
	return nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the commented sample configuration with db_path
// filled in.
func SaveTemplateConfig(configPath, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	template := strings.Replace(configTemplate, `db_path = ""`, fmt.Sprintf("db_path = %q", dbPath), 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetConfigDir returns the configuration directory for scout
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "scout"), nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
