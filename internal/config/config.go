package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/bodyscale/internal/ble/protocol"
	"github.com/chaz8081/bodyscale/internal/bodycomp"
)

// Config holds all application configuration.
type Config struct {
	Adapter        string        `yaml:"adapter" env:"BODYSCALE_ADAPTER"`
	DeviceAddress  string        `yaml:"device_address" env:"BODYSCALE_DEVICE_ADDRESS"`
	BroadcastID    string        `yaml:"broadcast_id" env:"BODYSCALE_BROADCAST_ID"`
	PasswordFile   string        `yaml:"password_file" env:"BODYSCALE_PASSWORD_FILE"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" env:"BODYSCALE_SCAN_TIMEOUT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"BODYSCALE_CONNECT_TIMEOUT"`
	LogLevel       string        `yaml:"log_level" env:"BODYSCALE_LOG_LEVEL"`
	Profile        ProfileConfig `yaml:"profile"`
	Journal        JournalConfig `yaml:"journal"`
	Redis          RedisConfig   `yaml:"redis"`
}

// ProfileConfig describes the person weighing in. Body composition is
// only computed when age and height are set.
type ProfileConfig struct {
	Sex     string  `yaml:"sex" env:"BODYSCALE_PROFILE_SEX"`
	Age     int     `yaml:"age" env:"BODYSCALE_PROFILE_AGE"`
	HeightM float64 `yaml:"height_m" env:"BODYSCALE_PROFILE_HEIGHT_M"`
	Formula string  `yaml:"formula" env:"BODYSCALE_PROFILE_FORMULA"` // "standard", "standard-alt" or "translate"
}

// JournalConfig holds measurement history settings.
type JournalConfig struct {
	Path string `yaml:"path" env:"BODYSCALE_JOURNAL_PATH"`
}

// RedisConfig holds publishing settings. Publishing is off when Addr is
// empty.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"BODYSCALE_REDIS_ADDR"`
	Password string `yaml:"password" env:"BODYSCALE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"BODYSCALE_REDIS_DB"`
	Key      string `yaml:"key" env:"BODYSCALE_REDIS_KEY"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bodyscale")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding the measurement journal.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "bodyscale")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Adapter:        "hci0",
		BroadcastID:    "01020304",
		PasswordFile:   filepath.Join(DefaultConfigDir(), "password"),
		ScanTimeout:    10 * time.Second,
		ConnectTimeout: 30 * time.Second,
		LogLevel:       "info",
		Profile: ProfileConfig{
			Formula: "standard",
		},
		Journal: JournalConfig{
			Path: filepath.Join(DefaultDataDir(), "measurements.cbor"),
		},
		Redis: RedisConfig{
			Key: "bodyscale:measurement",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults, then BODYSCALE_* environment variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any BODYSCALE_* variables that are set and
// expands a leading ~ in file paths.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.PasswordFile = expandTilde(cfg.PasswordFile)
	cfg.Journal.Path = expandTilde(cfg.Journal.Path)
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.ParseBroadcastID(); err != nil {
		return err
	}

	if c.PasswordFile == "" {
		return errors.New("password_file must not be empty")
	}

	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be > 0, got %s", c.ScanTimeout)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0, got %s", c.ConnectTimeout)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if _, _, err := c.Profile.BodyProfile(); err != nil {
		return err
	}

	if c.Redis.Addr != "" && c.Redis.Key == "" {
		return errors.New("redis.key must not be empty when redis.addr is set")
	}

	return nil
}

// ParseBroadcastID decodes the 8 hex character broadcast id.
func (c *Config) ParseBroadcastID() (protocol.BroadcastID, error) {
	var id protocol.BroadcastID
	raw, err := hex.DecodeString(strings.TrimSpace(c.BroadcastID))
	if err != nil {
		return id, fmt.Errorf("broadcast_id must be hex: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("broadcast_id must be %d bytes (%d hex chars), got %d bytes", len(id), 2*len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BodyProfile converts the profile section. ok is false when age or
// height is unset, meaning body composition is disabled.
func (p ProfileConfig) BodyProfile() (profile bodycomp.Profile, ok bool, err error) {
	if p.Age == 0 && p.HeightM == 0 {
		return bodycomp.Profile{}, false, nil
	}
	if p.Age == 0 || p.HeightM == 0 {
		return bodycomp.Profile{}, false, errors.New("profile.age and profile.height_m must be set together")
	}

	sex, err := bodycomp.ParseSex(p.Sex)
	if err != nil {
		return bodycomp.Profile{}, false, fmt.Errorf("profile.sex: %w", err)
	}
	profile = bodycomp.Profile{Sex: sex, Age: p.Age, HeightM: p.HeightM}

	switch p.Formula {
	case "", "standard":
		profile.Formula = bodycomp.FormulaStandard
	case "standard-alt":
		profile.Formula = bodycomp.FormulaStandard
		profile.Variant = true
	case "translate":
		profile.Formula = bodycomp.FormulaTranslate
	default:
		return bodycomp.Profile{}, false, fmt.Errorf("profile.formula must be \"standard\", \"standard-alt\" or \"translate\", got %q", p.Formula)
	}

	if err := profile.Validate(); err != nil {
		return bodycomp.Profile{}, false, fmt.Errorf("profile: %w", err)
	}
	return profile, true, nil
}

const defaultConfigTemplate = `# bodyscale configuration
# Environment variables named BODYSCALE_* override these values.

# Bluetooth controller (Linux only).
adapter: hci0

# Scale address as printed by "bodyscale scan".
device_address: ""

# Identifier sent to the scale when pairing (8 hex chars).
broadcast_id: "01020304"

# The password the scale broadcasts in pairing mode is stored here.
password_file: ~/.config/bodyscale/password

scan_timeout: 10s
connect_timeout: 30s

# debug, info, warn or error
log_level: info

# Set age and height to enable body composition estimates.
profile:
  sex: male
  age: 0
  height_m: 0
  formula: standard # standard, standard-alt or translate

journal:
  path: ~/.local/share/bodyscale/measurements.cbor

# Leave addr empty to disable publishing.
redis:
  addr: ""
  password: ""
  db: 0
  key: bodyscale:measurement
`

// WriteDefault writes a commented default config to path, creating parent
// directories. It returns ("", nil) without touching an existing file.
func WriteDefault(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
